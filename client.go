// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package mtproto implements the session layer on top of internal/auth,
// internal/mtproto/messages and internal/transport: connecting, performing
// or resuming the auth-key handshake, keeping msg_id/seq_no bookkeeping,
// and routing decrypted replies back to callers. See SPEC_FULL.md §4.5.
package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/k0kubun/pp"
	"github.com/pkg/errors"
	"github.com/xelaj/errs"

	"github.com/gomtp/mtproto/internal/auth"
	"github.com/gomtp/mtproto/internal/crypto"
	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mode"
	"github.com/gomtp/mtproto/internal/mtproto/messages"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
	"github.com/gomtp/mtproto/internal/session"
	"github.com/gomtp/mtproto/internal/transport"
)

// Client is one connection to one datacenter: a transport, an auth key, and
// the msg_id/seq_no/salt bookkeeping that goes with it. A multi-DC client
// (see the dispatcher package) owns several.
type Client struct {
	addr     string
	proxyURL string
	mode     mode.Variant

	transportMu  sync.Mutex
	transport    transport.Transport
	stopRoutines context.CancelFunc
	routineswg   sync.WaitGroup
	reconnecting bool
	reconnectMu  sync.Mutex

	authKey    []byte
	authKeyID  int64
	serverSalt int64
	encrypted  bool
	sessionID  int64

	seqNoMu sync.Mutex
	seqNo   int32

	msgIDMu   sync.Mutex
	lastMsgID int64
	timeDelta int64 // seconds added to local time to match the server's clock

	pending   map[int64]*pendingRequest
	pendingMu sync.Mutex

	handshakeCh chan []byte

	pubKeys []*crypto.PublicKey
	storage session.SessionLoader

	// sessionState is the last loaded (or saved) resume blob in full. This
	// client only owns a subset of its fields (auth_key/auth_id/server_salt/
	// delta_time/dc host); the rest — dc id/port, the legacy self_phone, and
	// the dispatcher-owned pts/qts/date/chat_ids — are carried through
	// unmodified so a save doesn't clobber state this layer doesn't track.
	sessionState *session.Session

	passwordNeededHandler func(*Client) error

	// Updates receives every server push (objects implementing
	// objects.GapSignal or the generic Updates/UpdatesState variants) that
	// isn't a direct reply to a pending request. The dispatcher package
	// reads from this to drive gap recovery.
	Updates chan tl.Object

	Warnings chan error

	serverRequestHandlers []func(tl.Object) bool
}

// Config configures one Client. PublicKeys defaults to
// crypto.DefaultPublicKeys() when nil.
type Config struct {
	ServerHost     string
	ProxyURL       string
	Mode           mode.Variant
	SessionStorage session.SessionLoader
	PublicKeys     []*crypto.PublicKey

	// PasswordNeededHandler, if set, is invoked automatically whenever a
	// request fails with SESSION_PASSWORD_NEEDED (SPEC_FULL.md §7: "PasswordNeeded
	// triggers an automatic account.getPassword request"). account.getPassword
	// belongs to the generated high-level RPC surface this package doesn't
	// own, so the actual call is the host application's responsibility; this
	// package only guarantees it gets invoked at the right moment.
	PasswordNeededHandler func(*Client) error
}

func NewClient(c Config) (*Client, error) {
	if c.SessionStorage == nil {
		return nil, errors.New("mtproto: Config.SessionStorage is required")
	}
	if c.PublicKeys == nil {
		c.PublicKeys = crypto.DefaultPublicKeys()
	}

	s, err := c.SessionStorage.Load()
	switch {
	case err == nil, errs.IsNotFound(err):
	default:
		return nil, errors.Wrap(err, "loading session")
	}

	sid, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	client := &Client{
		addr:                  c.ServerHost,
		proxyURL:              c.ProxyURL,
		mode:                  c.Mode,
		storage:               c.SessionStorage,
		pubKeys:               c.PublicKeys,
		pending:               make(map[int64]*pendingRequest),
		Updates:               make(chan tl.Object, 100),
		Warnings:              make(chan error, 10),
		sessionID:             sid,
		passwordNeededHandler: c.PasswordNeededHandler,
	}

	if s != nil {
		client.loadSession(s)
	}

	return client, nil
}

func generateSessionID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "generating session id")
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (c *Client) loadSession(s *session.Session) {
	c.authKey = s.AuthKey
	c.authKeyID = messages.AuthKeyID(s.AuthKey)
	c.serverSalt = int64(s.ServerSalt)
	c.encrypted = true
	c.timeDelta = int64(s.DeltaTime)
	if s.DC.Host != "" {
		c.addr = s.DC.Host
	}
	c.sessionState = s
}

// SaveSession persists the current auth key, salt, clock offset and address
// through the configured SessionLoader, at the wire layout SPEC_FULL.md §6
// defines. Fields this layer doesn't own (dc id/port, chat_ids, the
// dispatcher's pts/qts/date) are carried through from whatever was last
// loaded rather than zeroed.
func (c *Client) SaveSession() error {
	s := &session.Session{}
	if c.sessionState != nil {
		*s = *c.sessionState
	}
	s.DeltaTime = int32(c.timeDelta)
	s.DC.Host = c.addr
	s.AuthKey = c.authKey
	s.AuthID = uint64(c.authKeyID)
	s.ServerSalt = uint64(c.serverSalt)
	return c.storage.Save(s)
}

// Connect dials the transport, performs the auth-key handshake if the
// session didn't already have a key, and starts the background read and
// keepalive-ping loops.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.stopRoutines = cancel

	t, err := transport.Dial(transport.Config{
		Ctx:      runCtx,
		Host:     c.addr,
		ProxyURL: c.proxyURL,
		Mode:     c.mode,
	})
	if err != nil {
		cancel()
		return errors.Wrap(err, "dialing transport")
	}
	c.transportMu.Lock()
	c.transport = t
	c.transportMu.Unlock()

	c.startReadingResponses(runCtx)

	if !c.encrypted {
		if err := c.performHandshake(); err != nil {
			return errors.Wrap(err, "auth-key handshake")
		}
		c.encrypted = true
		if err := c.SaveSession(); err != nil {
			c.warnError(errors.Wrap(err, "saving session after handshake"))
		}
	}

	c.startPinging(runCtx)
	return nil
}

func (c *Client) performHandshake() error {
	n := auth.New(c.pubKeys)

	body, err := n.Begin()
	if err != nil {
		return err
	}

	for {
		msgID := c.nextMsgID()
		if err := c.sendPlain(msgID, body); err != nil {
			return errors.Wrap(err, "sending handshake step")
		}

		reply, err := c.awaitPlainReply(msgID)
		if err != nil {
			return errors.Wrap(err, "awaiting handshake reply")
		}

		body, _, err = n.Step(reply)
		if n.State() == auth.StateDone {
			authKey, salt, rerr := n.Result()
			if rerr != nil {
				return rerr
			}
			c.authKey = authKey
			c.authKeyID = messages.AuthKeyID(authKey)
			c.serverSalt = salt
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) sendPlain(msgID int64, body []byte) error {
	p := &messages.Plain{MsgID: msgID, Body: body}
	c.transportMu.Lock()
	t := c.transport
	c.transportMu.Unlock()
	return t.WriteFrame(p.Encode())
}

// awaitPlainReply blocks on the dedicated handshake channel the read loop
// feeds while no auth key exists yet. msgID isn't matched against the
// reply (plaintext handshake replies don't echo the request's msg_id);
// ordering on a single connection is enough during this phase.
func (c *Client) awaitPlainReply(msgID int64) ([]byte, error) {
	ch := c.handshakeChannel()
	select {
	case body := <-ch:
		return body, nil
	case <-time.After(30 * time.Second):
		return nil, errors.New("mtproto: timed out waiting for handshake reply")
	}
}

func (c *Client) handshakeChannel() chan []byte {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.handshakeCh == nil {
		c.handshakeCh = make(chan []byte, 1)
	}
	return c.handshakeCh
}

// triggerPasswordNeeded runs the configured PasswordNeededHandler, if any,
// after a SESSION_PASSWORD_NEEDED reply. A handler error is reported as a
// warning rather than returned, since the caller already has the original
// Unauthorized error to act on.
func (c *Client) triggerPasswordNeeded() {
	if c.passwordNeededHandler == nil {
		return
	}
	if err := c.passwordNeededHandler(c); err != nil {
		c.warnError(errors.Wrap(err, "account.getPassword after SESSION_PASSWORD_NEEDED"))
	}
}

func (c *Client) warnError(err error) {
	select {
	case c.Warnings <- err:
	default:
		pp.Println("mtproto: dropped warning, channel full:", err)
	}
}

func (c *Client) Disconnect() error {
	if c.stopRoutines != nil {
		c.stopRoutines()
	}
	c.transportMu.Lock()
	t := c.transport
	c.transportMu.Unlock()
	if t != nil {
		return t.Close()
	}
	return nil
}

func (c *Client) Reconnect(ctx context.Context) error {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return nil
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()
	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	if err := c.Disconnect(); err != nil {
		return errors.Wrap(err, "disconnecting")
	}
	c.routineswg.Wait()
	return errors.Wrap(c.Connect(ctx), "reconnecting")
}

// MigrateTo closes the current connection and reconnects against a
// different DC address, clearing session identity fields that are
// DC-scoped (seq_no, session id) the way a fresh connection would.
func (c *Client) MigrateTo(ctx context.Context, newAddr string) error {
	if err := c.Disconnect(); err != nil {
		return errors.Wrap(err, "disconnecting before migration")
	}
	c.routineswg.Wait()

	c.addr = newAddr
	c.encrypted = false
	c.seqNo = 0
	sid, err := generateSessionID()
	if err != nil {
		return err
	}
	c.sessionID = sid

	return errors.Wrap(c.Connect(ctx), "connecting to migrated dc")
}

func (c *Client) AddServerRequestHandler(h func(tl.Object) bool) {
	c.serverRequestHandlers = append(c.serverRequestHandlers, h)
}

func check(err error) {
	if err != nil {
		fmt.Println(err.Error())
	}
}
