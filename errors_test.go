// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

package mtproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTestHandlerFailed = errors.New("password handler failed")

func TestClassifyUnauthorizedCoversSessionAndPasswordSubkinds(t *testing.T) {
	cases := []struct {
		message string
		want    UnauthorizedSubkind
	}{
		{"AUTH_KEY_INVALID", UnauthorizedKeyInvalid},
		{"AUTH_KEY_UNREGISTERED", UnauthorizedKeyUnregistered},
		{"AUTH_KEY_EMPTY", UnauthorizedKeyEmpty},
		{"SESSION_EXPIRED", UnauthorizedSessionExpired},
		{"SESSION_REVOKED", UnauthorizedSessionRevoked},
		{"SESSION_PASSWORD_NEEDED", UnauthorizedPasswordNeeded},
	}
	for _, c := range cases {
		got, ok := ClassifyUnauthorized(&ErrResponseCode{Code: 401, Message: c.message})
		require.True(t, ok, c.message)
		require.Equal(t, c.want, got)
	}

	_, ok := ClassifyUnauthorized(&ErrResponseCode{Code: 400, Message: "SOMETHING_ELSE"})
	require.False(t, ok)
}

func TestTriggerPasswordNeededRunsConfiguredHandler(t *testing.T) {
	var called bool
	c := &Client{
		Warnings: make(chan error, 1),
		passwordNeededHandler: func(client *Client) error {
			called = true
			return nil
		},
	}
	c.triggerPasswordNeeded()
	require.True(t, called)
}

func TestTriggerPasswordNeededWarnsOnHandlerError(t *testing.T) {
	c := &Client{
		Warnings: make(chan error, 1),
		passwordNeededHandler: func(client *Client) error {
			return errTestHandlerFailed
		},
	}
	c.triggerPasswordNeeded()
	select {
	case err := <-c.Warnings:
		require.ErrorIs(t, err, errTestHandlerFailed)
	default:
		t.Fatal("expected a warning on the channel")
	}
}
