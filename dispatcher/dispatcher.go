// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package dispatcher multiplexes requests across a pool of per-DC sessions,
// reconciles streaming updates against a local (pts, qts, seq, date) state,
// and schedules chunked file jobs. It has no teacher analogue: the teacher
// (github.com/xelaj/mtproto) is a single-DC client, so this package is
// grounded directly on original_source/telegram-qt/CTelegramDispatcher.cpp,
// translated into the teacher's event-sink-over-channel idiom. See
// SPEC_FULL.md §4.6.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/gomtp/mtproto"
	"github.com/gomtp/mtproto/internal/crypto"
	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mode"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
	"github.com/gomtp/mtproto/internal/session"
)

// DcInfo is one built-in default data-center address. The real list carries
// five entries; tests and callers that don't care about real Telegram IPs
// can substitute their own via Config.BuiltinDCs.
type DcInfo struct {
	ID   int32
	Host string
}

// DefaultDCs mirrors the five hard-coded Telegram production endpoints
// (port 443, TCP-abridged) bundled with every MTProto client.
var DefaultDCs = []DcInfo{
	{ID: 1, Host: "149.154.175.53:443"},
	{ID: 2, Host: "149.154.167.51:443"},
	{ID: 3, Host: "149.154.175.100:443"},
	{ID: 4, Host: "149.154.167.91:443"},
	{ID: 5, Host: "91.108.56.130:443"},
}

// ConnectionState is the user-visible connection state machine from
// SPEC_FULL.md §7: Disconnected -> Connecting -> Connected -> AuthRequired |
// Authenticated -> Ready, plus a terminal Disconnected(reason).
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	AuthRequired
	Authenticated
	Ready
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case AuthRequired:
		return "auth-required"
	case Authenticated:
		return "authenticated"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// StepFunc issues the single RPC a bring-up step needs and reports success.
// The dispatcher core only owns the bitmask/ordering machinery; the actual
// RPC content (help.getConfig, users.getFullUser, ...) is a generated-API
// concern explicitly out of scope (SPEC_FULL.md §1 Non-goals: "convenience
// wrappers over high-level RPC calls"). A step with no handler registered is
// treated as satisfied immediately.
type StepFunc func(ctx context.Context, d *Dispatcher) error

// ChunkSender issues one outgoing file chunk against a specific DC; like
// StepFunc, the dispatcher only owns chunking/pacing/MD5 bookkeeping, not
// the upload.saveFilePart/saveBigFilePart RPC itself.
type ChunkSender func(ctx context.Context, dc int32, job *FileJob, chunk []byte, isLast bool) error

// ChunkReceiver fetches one inbound chunk (upload.getFile) for a download job.
type ChunkReceiver func(ctx context.Context, dc int32, job *FileJob, offset int32, limit int32) ([]byte, error)

// SessionStorageFactory lets each DC persist its session independently (file
// path or Redis key per DC id, typically).
type SessionStorageFactory func(dc int32) session.SessionLoader

// ActionSender re-emits a locally suppressed typing/action notification.
type ActionSender func(ctx context.Context, chatID int64, action string) error

// Config configures a Dispatcher.
type Config struct {
	BuiltinDCs     []DcInfo
	ProxyURL       string
	Mode           mode.Variant
	PublicKeys     []*crypto.PublicKey
	SessionStorage SessionStorageFactory
	AutoReconnect  bool

	StepHandlers    map[InitStep]StepFunc
	GetDifference   func(ctx context.Context, local objects.UpdatesState) (*objects.UpdatesDifference, error)
	ChunkSender     ChunkSender
	ChunkReceiver   ChunkReceiver
	ActionSender    ActionSender
	ExportAuth      func(ctx context.Context, mainDC int32, targetDC int32) (userID int64, bytes []byte, err error)
	ImportAuth      func(ctx context.Context, targetDC int32, userID int64, bytes []byte) error
}

// dcSession is one pooled connection: the main session bound to the active
// DC, or an extra session opened only to serve a file job on a foreign DC.
type dcSession struct {
	id       int32
	client   *mtproto.Client
	haveKey  bool
	signedIn bool
	limiter  *rate.Limiter
}

// Dispatcher is the multi-DC orchestrator: connection pool, bring-up state
// machine, update reconciliation, and file-job scheduling.
type Dispatcher struct {
	cfg Config

	mu       sync.Mutex
	state    ConnectionState
	mainDC   int32
	sessions map[int32]*dcSession
	dcIndex  int

	completedSteps InitStep
	requestedSteps InitStep

	updMu       sync.Mutex
	update      objects.UpdatesState
	updateLock  bool
	diffTimer   *time.Timer

	jobsMu sync.Mutex
	jobs   map[string]*FileJob

	actions *ActionTracker

	events   chan tl.Object
	Warnings chan error
	readyCh  chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Dispatcher; call Start to bring up the main connection.
func New(cfg Config) *Dispatcher {
	if cfg.BuiltinDCs == nil {
		cfg.BuiltinDCs = DefaultDCs
	}
	if cfg.PublicKeys == nil {
		cfg.PublicKeys = crypto.DefaultPublicKeys()
	}
	return &Dispatcher{
		cfg:      cfg,
		sessions: make(map[int32]*dcSession),
		jobs:     make(map[string]*FileJob),
		events:   make(chan tl.Object, 256),
		Warnings: make(chan error, 32),
		readyCh:  make(chan struct{}),
		actions:  newActionTracker(),
	}
}

// Events delivers every server push the dispatcher has already reconciled
// against the local update state (gap-free, in arrival order).
func (d *Dispatcher) Events() <-chan tl.Object { return d.events }

// Typing exposes the local/remote typing-action tracker.
func (d *Dispatcher) Typing() *ActionTracker { return d.actions }

// Ready is closed once every bring-up step has completed.
func (d *Dispatcher) Ready() <-chan struct{} { return d.readyCh }

func (d *Dispatcher) setState(s ConnectionState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dispatcher) State() ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start dials the first built-in DC (tryNextDCAddress), runs the handshake,
// and kicks off the initialization bitmask; see CTelegramDispatcher::initConnection.
func (d *Dispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.ctx = runCtx
	d.cancel = cancel

	d.setState(Connecting)
	if err := d.tryNextDCAddress(runCtx); err != nil {
		d.setState(Disconnected)
		return err
	}

	d.actions.start(runCtx, &d.wg, d.cfg.ActionSender)
	d.continueInitialization(0)
	return nil
}

// tryNextDCAddress dials built-in DCs in round-robin order until one
// connects, wrapping to index 0 only if AutoReconnect is enabled once the
// list is exhausted — CTelegramDispatcher::tryNextDcAddress.
func (d *Dispatcher) tryNextDCAddress(ctx context.Context) error {
	dcs := d.cfg.BuiltinDCs
	var lastErr error
	for attempt := 0; attempt < len(dcs); attempt++ {
		info := dcs[d.dcIndex%len(dcs)]
		d.dcIndex++

		sess, err := d.connectDC(ctx, info.ID, info.Host)
		if err == nil {
			d.mu.Lock()
			d.mainDC = info.ID
			d.sessions[info.ID] = sess
			d.mu.Unlock()
			d.setState(Connected)
			d.watchSession(ctx, sess)
			return nil
		}
		lastErr = err
	}
	if d.cfg.AutoReconnect {
		d.dcIndex = 0
	}
	return errors.Wrap(lastErr, "dispatcher: exhausted built-in dc list")
}

func (d *Dispatcher) connectDC(ctx context.Context, dcID int32, host string) (*dcSession, error) {
	storage := d.cfg.SessionStorage
	if storage == nil {
		return nil, errors.New("dispatcher: Config.SessionStorage is required")
	}
	client, err := mtproto.NewClient(mtproto.Config{
		ServerHost:     host,
		ProxyURL:       d.cfg.ProxyURL,
		Mode:           d.cfg.Mode,
		SessionStorage: storage(dcID),
		PublicKeys:     d.cfg.PublicKeys,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "dc %d: building client", dcID)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, errors.Wrapf(err, "dc %d: connecting", dcID)
	}
	return &dcSession{
		id:      dcID,
		client:  client,
		haveKey: true, // Connect() only returns once the handshake (or resume) succeeded
		limiter: rate.NewLimiter(rate.Limit(20), 4),
	}, nil
}

// watchSession fans a session's Updates and Warnings channels into the
// dispatcher's own, giving sessions only an opaque event sink per
// SPEC_FULL.md §9 ("break the cycle by giving sessions only an opaque event
// sink; the dispatcher drains them").
func (d *Dispatcher) watchSession(ctx context.Context, s *dcSession) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case obj, ok := <-s.client.Updates:
				if !ok {
					return
				}
				d.handleUpdate(ctx, obj)
			case err, ok := <-s.client.Warnings:
				if !ok {
					return
				}
				d.forwardWarning(err)
			}
		}
	}()
}

func (d *Dispatcher) forwardWarning(err error) {
	select {
	case d.Warnings <- err:
	default:
	}
}

// ensureSignedSession exports the main session's authorization onto dc (if
// not already done) and imports it there, queuing the caller until both
// HaveAKey and SignedIn are true — CTelegramDispatcher::ensureSignedConnection.
func (d *Dispatcher) ensureSignedSession(ctx context.Context, dc int32) (*dcSession, error) {
	d.mu.Lock()
	s, ok := d.sessions[dc]
	d.mu.Unlock()
	if ok && s.signedIn {
		return s, nil
	}

	if !ok {
		info, err := d.lookupDC(dc)
		if err != nil {
			return nil, err
		}
		s, err = d.connectDC(ctx, dc, info.Host)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.sessions[dc] = s
		d.mu.Unlock()
		d.watchSession(ctx, s)
	}

	if d.cfg.ExportAuth == nil || d.cfg.ImportAuth == nil {
		return nil, errors.New("dispatcher: Config.ExportAuth/ImportAuth required for cross-dc sign-in")
	}
	userID, blob, err := d.cfg.ExportAuth(ctx, d.mainDC, dc)
	if err != nil {
		return nil, errors.Wrapf(err, "exporting authorization to dc %d", dc)
	}
	if err := d.cfg.ImportAuth(ctx, dc, userID, blob); err != nil {
		return nil, errors.Wrapf(err, "importing authorization on dc %d", dc)
	}
	s.signedIn = true
	return s, nil
}

func (d *Dispatcher) lookupDC(id int32) (DcInfo, error) {
	for _, info := range d.cfg.BuiltinDCs {
		if info.ID == id {
			return info, nil
		}
	}
	return DcInfo{}, errors.Errorf("dispatcher: unknown dc %d", id)
}

// MigrateMain tears down the current main session and brings up dc as the
// new one — CTelegramDispatcher's response to a *_MIGRATE_X rpc error
// surfaced by the session layer as *mtproto.MigrateError.
func (d *Dispatcher) MigrateMain(ctx context.Context, dc int32) error {
	info, err := d.lookupDC(dc)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.sessions[d.mainDC]
	delete(d.sessions, d.mainDC)
	d.mu.Unlock()
	if old != nil {
		_ = old.client.Disconnect()
	}

	s, err := d.connectDC(ctx, dc, info.Host)
	if err != nil {
		return errors.Wrapf(err, "migrating main session to dc %d", dc)
	}
	d.mu.Lock()
	d.mainDC = dc
	d.sessions[dc] = s
	d.mu.Unlock()
	d.watchSession(ctx, s)
	return nil
}

// MakeRequest issues an RPC on the main session, transparently migrating and
// retrying once if the server answers with a *_MIGRATE_X error.
func (d *Dispatcher) MakeRequest(ctx context.Context, req mtproto.Request) (tl.Object, error) {
	d.mu.Lock()
	s := d.sessions[d.mainDC]
	d.mu.Unlock()
	if s == nil {
		return nil, errors.New("dispatcher: no main session")
	}

	resp, err := s.client.MakeRequest(req)
	if err == nil {
		return resp, nil
	}
	if migrate, ok := mtproto.AsMigrateError(err); ok {
		if merr := d.MigrateMain(ctx, int32(migrate.Target)); merr != nil {
			return nil, errors.Wrap(merr, "handling migrate error")
		}
		d.mu.Lock()
		s = d.sessions[d.mainDC]
		d.mu.Unlock()
		return s.client.MakeRequest(req)
	}
	return nil, err
}

// Close tears down every pooled session and cancels all file jobs and the
// update-state lock, per SPEC_FULL.md §5 "Closing the dispatcher".
func (d *Dispatcher) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Lock()
	sessions := make([]*dcSession, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.sessions = map[int32]*dcSession{}
	d.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.client.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.wg.Wait()

	d.jobsMu.Lock()
	d.jobs = map[string]*FileJob{}
	d.jobsMu.Unlock()

	d.updMu.Lock()
	d.updateLock = false
	if d.diffTimer != nil {
		d.diffTimer.Stop()
	}
	d.updMu.Unlock()

	return firstErr
}
