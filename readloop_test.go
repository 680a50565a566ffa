// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

package mtproto

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mtproto/messages"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
	"github.com/gomtp/mtproto/internal/session"
)

// discardStorage satisfies session.SessionLoader without touching disk;
// dispatchObject's bad_server_salt/new_session_created branches call
// SaveSession as a side effect and these tests don't care where it lands.
type discardStorage struct{}

func (discardStorage) Load() (*session.Session, error) { return nil, nil }
func (discardStorage) Save(*session.Session) error     { return nil }

// captureTransport records every frame WriteFrame is given; ReadFrame is
// never exercised by these tests.
type captureTransport struct {
	mu     sync.Mutex
	frames [][]byte
}

func (t *captureTransport) WriteFrame(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, payload)
	return nil
}

func (t *captureTransport) ReadFrame() ([]byte, error) { select {} }
func (t *captureTransport) Close() error               { return nil }

func (t *captureTransport) last() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[len(t.frames)-1]
}

func (t *captureTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

func newTestClientWithTransport() (*Client, *captureTransport) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i)
	}
	ct := &captureTransport{}
	c := &Client{
		authKey:    authKey,
		authKeyID:  messages.AuthKeyID(authKey),
		serverSalt: 1,
		sessionID:  42,
		encrypted:  true,
		pending:    make(map[int64]*pendingRequest),
		Updates:    make(chan tl.Object, 10),
		Warnings:   make(chan error, 10),
		transport:  ct,
		storage:    discardStorage{},
	}
	return c, ct
}

// TestBadServerSaltTriggersExactlyOneResendWithFreshMsgID exercises the
// boundary behavior in SPEC_FULL.md §8: a bad_server_salt response resends
// the offending request exactly once, under a strictly greater msg_id.
func TestBadServerSaltTriggersExactlyOneResendWithFreshMsgID(t *testing.T) {
	c, ct := newTestClientWithTransport()

	req := &objects.PingDelayDisconnect{PingID: 7, DisconnectDelay: 75}
	oldMsgID := c.nextMsgID()
	ch := make(chan tl.Object, 1)
	c.pending[oldMsgID] = &pendingRequest{ch: ch, data: req}
	require.NoError(t, c.sendEncrypted(oldMsgID, c.nextSeqNo(true), req.Encode()))
	require.Equal(t, 1, ct.count())

	err := c.dispatchObject(oldMsgID, &objects.BadServerSalt{BadMsgID: oldMsgID, NewSalt: 0xCAFE})
	require.NoError(t, err)

	require.Equal(t, int64(0xCAFE), c.serverSalt)
	require.Equal(t, 2, ct.count(), "expected exactly one resend")

	c.pendingMu.Lock()
	_, stillPendingUnderOldID := c.pending[oldMsgID]
	c.pendingMu.Unlock()
	require.False(t, stillPendingUnderOldID)

	env, err := messages.DecodeEncrypted(ct.last(), c.authKey, true)
	require.NoError(t, err)
	require.Greater(t, env.MsgID, oldMsgID)

	body, err := tl.DecodeUnknownObjectBytes(env.Body)
	require.NoError(t, err)
	resent, ok := body.(*objects.PingDelayDisconnect)
	require.True(t, ok)
	require.Equal(t, req, resent)

	c.pendingMu.Lock()
	pr, ok := c.pending[env.MsgID]
	c.pendingMu.Unlock()
	require.True(t, ok)
	require.True(t, pr.ch == ch, "resent entry should keep the caller's original reply channel")
}

// TestBadMsgNotificationClockSkewResendsWithFreshMsgID covers the other
// caller of deliverAndRetry: a clock-skew bad_msg_notification code.
func TestBadMsgNotificationClockSkewResendsWithFreshMsgID(t *testing.T) {
	c, ct := newTestClientWithTransport()

	req := &objects.PingDelayDisconnect{PingID: 9, DisconnectDelay: 75}
	oldMsgID := c.nextMsgID()
	ch := make(chan tl.Object, 1)
	c.pending[oldMsgID] = &pendingRequest{ch: ch, data: req}
	require.NoError(t, c.sendEncrypted(oldMsgID, c.nextSeqNo(true), req.Encode()))

	err := c.dispatchObject(oldMsgID, &objects.BadMsgNotification{BadMsgID: oldMsgID, ErrorCode: 16})
	require.NoError(t, err)

	require.Equal(t, 2, ct.count(), "expected exactly one resend")
	env, err := messages.DecodeEncrypted(ct.last(), c.authKey, true)
	require.NoError(t, err)
	require.Greater(t, env.MsgID, oldMsgID)
}
