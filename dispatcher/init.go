package dispatcher

import "context"

// InitStep is the bring-up bitmask from CTelegramDispatcher::InitializationStep,
// kept in the original's order: DcConfiguration | SignIn | KnowSelf |
// ContactList | ChatInfo | Updates. Terminal state is all bits set.
type InitStep uint32

const (
	StepDcConfiguration InitStep = 1 << iota
	StepSignIn
	StepKnowSelf
	StepContactList
	StepChatInfo
	StepUpdates

	stepAll = StepDcConfiguration | StepSignIn | StepKnowSelf | StepContactList | StepChatInfo | StepUpdates
)

func (s InitStep) String() string {
	names := []struct {
		bit  InitStep
		name string
	}{
		{StepDcConfiguration, "DcConfiguration"},
		{StepSignIn, "SignIn"},
		{StepKnowSelf, "KnowSelf"},
		{StepContactList, "ContactList"},
		{StepChatInfo, "ChatInfo"},
		{StepUpdates, "Updates"},
	}
	out := ""
	for _, n := range names {
		if s&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// orderedSteps is the fixed evaluation order continueInitialization walks;
// SignIn necessarily precedes the steps that need an authenticated session.
var orderedSteps = []InitStep{
	StepDcConfiguration,
	StepSignIn,
	StepKnowSelf,
	StepContactList,
	StepChatInfo,
	StepUpdates,
}

// continueInitialization is the single re-evaluation point for the bring-up
// state machine: justDone (0 on first call) is folded into completedSteps,
// then the earliest not-yet-completed step in order gets its handler issued
// — one request in flight at a time, exactly as CTelegramDispatcher's
// "on each completion, issue the next request" rule reads. A step with no
// configured handler is treated as satisfied immediately (see StepFunc doc).
// All bits set -> state Ready, readyCh closed.
func (d *Dispatcher) continueInitialization(justDone InitStep) {
	d.mu.Lock()
	d.completedSteps |= justDone
	completed := d.completedSteps
	d.mu.Unlock()

	if completed == stepAll {
		d.setState(Ready)
		d.readyOnce.Do(func() { close(d.readyCh) })
		return
	}

	for _, step := range orderedSteps {
		d.mu.Lock()
		alreadyDone := d.completedSteps&step != 0
		alreadyRequested := d.requestedSteps&step != 0
		if !alreadyDone && !alreadyRequested {
			d.requestedSteps |= step
		}
		d.mu.Unlock()

		if alreadyDone {
			continue
		}
		if alreadyRequested {
			return // waiting on this step's in-flight request
		}

		handler, ok := d.cfg.StepHandlers[step]
		if !ok {
			// No RPC registered for this step: mark it satisfied and
			// immediately move on to evaluating the next one.
			d.continueInitialization(step)
			return
		}

		go d.runStep(step, handler)
		return
	}
}

func (d *Dispatcher) runStep(step InitStep, handler StepFunc) {
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := handler(ctx, d); err != nil {
		d.mu.Lock()
		d.requestedSteps &^= step
		d.mu.Unlock()
		d.forwardWarning(err)
		return
	}
	d.continueInitialization(step)
}
