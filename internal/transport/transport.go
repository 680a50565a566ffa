// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package transport opens a connection to a DC address, frames outgoing
// bytes and delivers inbound frames. It is deliberately abstract: the
// session layer only ever sees whole packets of opaque bytes, whichever of
// TCP-abridged, TCP-intermediate, or WebSocket carries them.
package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/mode"
)

// State names the three connection states of a transport; the Transport
// interface itself does not report them.
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Transport is the abstract wire-level connection the session layer drives.
type Transport interface {
	// WriteFrame sends one whole packet, framed per the configured mode.
	WriteFrame(payload []byte) error
	// ReadFrame blocks for one whole inbound packet, unframed.
	ReadFrame() ([]byte, error)
	Close() error
}

// Config carries the parameters shared by every concrete transport.
type Config struct {
	Ctx      context.Context
	Host     string // host:port, or a ws(s):// URL for the websocket transport
	ProxyURL string // optional SOCKS proxy, TCP transport only
	Mode     mode.Variant
}

// Dial opens the right concrete transport for cfg.Host: a ws(s):// prefix
// selects the WebSocket transport (grounded on bhandras-delight's
// client/server websocket pair), anything else dials TCP.
func Dial(cfg Config) (Transport, error) {
	if isWebSocketHost(cfg.Host) {
		return dialWebSocket(cfg)
	}
	t, err := dialTCP(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "dialing transport")
	}
	return t, nil
}

func isWebSocketHost(host string) bool {
	return len(host) >= 5 && (host[:5] == "ws://" || (len(host) >= 6 && host[:6] == "wss://"))
}
