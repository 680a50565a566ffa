package dispatcher

import (
	"context"
	"time"

	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
)

// getDifferenceDebounce matches CTelegramDispatcher's 10ms debounce before
// checkStateAndCallGetDifference actually issues updates.getDifference.
const getDifferenceDebounce = 10 * time.Millisecond

// ensureUpdateState adopts a server-provided (pts, qts, date, seq) tuple
// wholesale — used right after sign-in and after a getDifference response,
// when there is no "local" state yet to clamp against.
func (d *Dispatcher) ensureUpdateState(s objects.UpdatesState) {
	d.updMu.Lock()
	d.update = s
	d.updMu.Unlock()
}

// setUpdateState advances the local state field-by-field, never regressing
// it (SPEC_FULL.md invariant: local_pts_after >= local_pts_before, and
// likewise for qts/date).
func (d *Dispatcher) setUpdateState(pts, qts, date, seq int32) {
	d.updMu.Lock()
	defer d.updMu.Unlock()
	if pts > d.update.Pts {
		d.update.Pts = pts
	}
	if qts > d.update.Qts {
		d.update.Qts = qts
	}
	if date > d.update.Date {
		d.update.Date = date
	}
	if seq > d.update.Seq {
		d.update.Seq = seq
	}
}

func (d *Dispatcher) currentState() objects.UpdatesState {
	d.updMu.Lock()
	defer d.updMu.Unlock()
	return d.update
}

// handleUpdate is the dispatcher side of the session's opaque event sink:
// short updates are expanded into a synthetic updateNewMessage first, then
// every GapSignal-carrying update is checked against the local pts before
// being forwarded on Events().
func (d *Dispatcher) handleUpdate(ctx context.Context, obj tl.Object) {
	switch v := obj.(type) {
	case *objects.UpdateShortMessage:
		obj = &objects.UpdateNewMessage{PTS: v.PTS, PTSCount: v.PTSCount}
	case *objects.UpdateShortChatMessage:
		obj = &objects.UpdateNewMessage{PTS: v.PTS, PTSCount: v.PTSCount}
	case *objects.UpdatesDifferenceTooLong:
		d.checkStateAndCallGetDifference(ctx)
		return
	case *objects.UpdatesCombined:
		// Decode() on this type always errors before we ever see an instance,
		// but handled here too in case a future registry variant reaches us.
		d.checkStateAndCallGetDifference(ctx)
		return
	}

	gap, ok := obj.(objects.GapSignal)
	if !ok {
		d.deliver(obj)
		return
	}

	pts, ptsCount := gap.GapInfo()
	local := d.currentState()
	d.updMu.Lock()
	locked := d.updateLock
	d.updMu.Unlock()
	if !locked && (ptsCount == 0 || local.Pts+ptsCount == pts) {
		d.setUpdateState(pts, local.Qts, local.Date, local.Seq)
		d.deliver(obj)
		return
	}

	// Gap detected, or state is locked by a pending getDifference: don't
	// deliver this update (it will be recovered, along with whatever else was
	// missed, via the difference response), lock state advances, and
	// debounce the getDifference call.
	d.checkStateAndCallGetDifference(ctx)
}

func (d *Dispatcher) deliver(obj tl.Object) {
	select {
	case d.events <- obj:
	default:
		d.forwardWarning(errDroppedEvent)
	}
}

var errDroppedEvent = dispatcherError("dispatcher: dropped event, Events() channel full")

type dispatcherError string

func (e dispatcherError) Error() string { return string(e) }

// checkStateAndCallGetDifference locks further state advances and schedules
// a single debounced updates.getDifference call; repeated gap signals within
// the debounce window collapse onto the same pending timer.
func (d *Dispatcher) checkStateAndCallGetDifference(ctx context.Context) {
	d.updMu.Lock()
	if d.updateLock {
		d.updMu.Unlock()
		return
	}
	d.updateLock = true
	if d.diffTimer != nil {
		d.diffTimer.Stop()
	}
	d.diffTimer = time.AfterFunc(getDifferenceDebounce, func() { d.runGetDifference(ctx) })
	d.updMu.Unlock()
}

func (d *Dispatcher) runGetDifference(ctx context.Context) {
	defer func() {
		d.updMu.Lock()
		d.updateLock = false
		d.updMu.Unlock()
	}()

	if d.cfg.GetDifference == nil {
		d.forwardWarning(dispatcherError("dispatcher: update gap detected but Config.GetDifference is not configured"))
		return
	}

	diff, err := d.cfg.GetDifference(ctx, d.currentState())
	if err != nil {
		d.forwardWarning(err)
		return
	}
	if diff == nil || diff.State == nil {
		return
	}

	d.ensureUpdateState(*diff.State)
	for _, u := range diff.OtherUpdates {
		d.deliver(u)
	}
}
