package mtproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextMsgIDIsMonotonicAndDivisibleByFour(t *testing.T) {
	c := &Client{}
	var last int64
	for i := 0; i < 1000; i++ {
		id := c.nextMsgID()
		require.Greater(t, id, last)
		require.Zero(t, id%4)
		last = id
	}
}

func TestNextSeqNoContentRelatedIsOddAndIncrements(t *testing.T) {
	c := &Client{}

	first := c.nextSeqNo(true)
	require.Equal(t, int32(1), first)

	ackOnly := c.nextSeqNo(false)
	require.Equal(t, int32(2), ackOnly)
	require.Zero(t, ackOnly%2)

	second := c.nextSeqNo(true)
	require.Equal(t, int32(3), second)
}
