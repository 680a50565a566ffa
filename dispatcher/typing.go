package dispatcher

import (
	"context"
	"sync"
	"time"
)

// TTLs and re-emit cadence from CTelegramDispatcher::messageActionTimerTimeout.
const (
	remoteActionTTL  = 6 * time.Second
	localActionTTL   = 5 * time.Second
	actionReemitTick = 400 * time.Millisecond
)

type actionKey struct {
	chatID int64
	userID int64
}

type localAction struct {
	action   string
	started  time.Time
	lastSent time.Time
}

type remoteAction struct {
	action  string
	expires time.Time
}

// ActionTracker drains two lists on one repeating timer: local (outgoing
// typing notifications, re-emitted at actionReemitTick under localActionTTL
// to suppress flooding) and remote (received indications, expired after
// remoteActionTTL). Grounded on CTelegramDispatcher's single action timer.
type ActionTracker struct {
	mu     sync.Mutex
	local  map[actionKey]*localAction
	remote map[actionKey]*remoteAction

	expired chan actionKey
}

func newActionTracker() *ActionTracker {
	return &ActionTracker{
		local:   make(map[actionKey]*localAction),
		remote:  make(map[actionKey]*remoteAction),
		expired: make(chan actionKey, 64),
	}
}

// SetTyping registers (or refreshes) a locally-emitted typing action for a
// chat/user pair; the tracker re-emits it at actionReemitTick until it is
// cleared or localActionTTL elapses.
func (t *ActionTracker) SetTyping(chatID, userID int64, action string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.local[actionKey{chatID, userID}] = &localAction{action: action, started: now, lastSent: now}
}

// ClearTyping stops re-emitting a locally-emitted action (the user sent the
// message or cancelled typing).
func (t *ActionTracker) ClearTyping(chatID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.local, actionKey{chatID, userID})
}

// NoteRemote records a received typing indication with a fresh remoteActionTTL.
func (t *ActionTracker) NoteRemote(chatID, userID int64, action string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote[actionKey{chatID, userID}] = &remoteAction{action: action, expires: time.Now().Add(remoteActionTTL)}
}

// Expired delivers chat/user keys whose remote action has timed out.
func (t *ActionTracker) Expired() <-chan actionKey { return t.expired }

func (t *ActionTracker) start(ctx context.Context, wg *sync.WaitGroup, send ActionSender) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(actionReemitTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.tick(ctx, now, send)
			}
		}
	}()
}

func (t *ActionTracker) tick(ctx context.Context, now time.Time, send ActionSender) {
	t.mu.Lock()
	var toReemit []struct {
		key actionKey
		a   string
	}
	for k, a := range t.local {
		if now.Sub(a.started) >= localActionTTL {
			delete(t.local, k)
			continue
		}
		if now.Sub(a.lastSent) >= actionReemitTick {
			a.lastSent = now
			toReemit = append(toReemit, struct {
				key actionKey
				a   string
			}{k, a.action})
		}
	}
	var expiredKeys []actionKey
	for k, r := range t.remote {
		if now.After(r.expires) {
			delete(t.remote, k)
			expiredKeys = append(expiredKeys, k)
		}
	}
	t.mu.Unlock()

	for _, k := range expiredKeys {
		select {
		case t.expired <- k:
		default:
		}
	}

	if send == nil {
		return
	}
	for _, r := range toReemit {
		_ = send(ctx, r.key.chatID, r.a)
	}
}
