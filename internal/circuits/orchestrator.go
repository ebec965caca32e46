// Package circuits implements the on-demand "list circuits, then close them" refresh.
package circuits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"onionctl/internal/ctlerr"
	"onionctl/internal/reporting"
	"onionctl/internal/tunnel"
	"onionctl/pkg/logging"
)

// ErrTunnelGone is the cause reported when a refresh is aborted because the tunnel is
// being disconnected.
var ErrTunnelGone = errors.New("tunnel disconnected")

// Step names a refresh progress step.
type Step string

const (
	StepListing Step = "listing"
	StepClosing Step = "closing"
	StepDone    Step = "done"
	StepFailed  Step = "failed"
)

// Progress is one update of a refresh. Count is set on StepDone; Err on StepFailed.
type Progress struct {
	Step          Step    `json:"step"`
	Fraction      float64 `json:"fraction"`
	Count         int     `json:"count,omitempty"`
	Err           error   `json:"-"`
	CorrelationID string  `json:"correlationId"`
}

// Terminal reports whether p ends the refresh.
func (p Progress) Terminal() bool {
	return p.Step == StepDone || p.Step == StepFailed
}

func (p Progress) String() string {
	switch p.Step {
	case StepDone:
		return fmt.Sprintf("done(%d)", p.Count)
	case StepFailed:
		return fmt.Sprintf("failed(%v)", p.Err)
	default:
		return string(p.Step)
	}
}

// RefreshEvent is published on the bus for every progress step.
type RefreshEvent struct {
	reporting.BaseEvent
	Step  Step   `json:"step"`
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
}

func (e RefreshEvent) String() string {
	if e.Error != "" {
		return fmt.Sprintf("circuit refresh %s: %s", e.Step, e.Error)
	}
	return fmt.Sprintf("circuit refresh %s", e.Step)
}

// Orchestrator runs at most one refresh at a time.
type Orchestrator struct {
	ctl tunnel.Control
	bus reporting.EventBus

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// NewOrchestrator creates an orchestrator. bus may be nil.
func NewOrchestrator(ctl tunnel.Control, bus reporting.EventBus) *Orchestrator {
	return &Orchestrator{ctl: ctl, bus: bus}
}

// Running reports whether a refresh is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Refresh lists the tunnel's circuits and closes all of them as one batch. It returns
// immediately; progress is streamed on the returned channel, which is closed after the
// terminal Done or Failed step. A second call while one is in flight fails with a
// BusyError and leaves the first untouched. Nothing is retried.
func (o *Orchestrator) Refresh(ctx context.Context) (<-chan Progress, error) {
	// running and cancel are set together under mu.
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running.CompareAndSwap(false, true) {
		return nil, &ctlerr.BusyError{Op: "circuit refresh"}
	}

	rctx, cancel := context.WithCancelCause(ctx)
	o.cancel = cancel

	// Buffered for every step a refresh can produce, so the worker never blocks on a slow
	// reader.
	out := make(chan Progress, 3)
	id := reporting.GenerateCorrelationID()
	go o.run(rctx, cancel, id, out)
	return out, nil
}

// Abort cancels the in-flight refresh, if any. The refresh reports Failed with ErrTunnelGone
// and any result arriving afterwards is discarded.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		logging.Debug("Circuits", "Aborting in-flight refresh")
		o.cancel(ErrTunnelGone)
	}
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelCauseFunc, id string, out chan<- Progress) {
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
		cancel(nil)
		o.running.Store(false)
		close(out)
	}()

	emit := func(p Progress) {
		p.CorrelationID = id
		out <- p
		o.publish(p)
	}
	fail := func(op string, err error) {
		terr := ctlerr.NewTunnelError(op, err)
		logging.Warn("Circuits", "Refresh %s failed: %s", id, terr.Reason)
		emit(Progress{Step: StepFailed, Fraction: 1, Err: terr})
	}

	emit(Progress{Step: StepListing, Fraction: 0})
	list, err := o.ctl.ListCircuits(ctx)
	if cause := context.Cause(ctx); cause != nil {
		fail("refresh", cause)
		return
	}
	if err != nil {
		fail("list", err)
		return
	}

	if len(list) > 0 {
		emit(Progress{Step: StepClosing, Fraction: 0.5})
		err = o.ctl.CloseCircuits(ctx, tunnel.IDs(list))
		if cause := context.Cause(ctx); cause != nil {
			fail("refresh", cause)
			return
		}
		if err != nil {
			fail("close", err)
			return
		}
	}

	logging.Info("Circuits", "Refresh %s closed %d circuits", id, len(list))
	emit(Progress{Step: StepDone, Fraction: 1, Count: len(list)})
}

func (o *Orchestrator) publish(p Progress) {
	if o.bus == nil {
		return
	}
	var (
		et       reporting.EventType
		severity = reporting.SeverityInfo
	)
	switch p.Step {
	case StepListing:
		et = reporting.EventTypeCircuitsListing
	case StepClosing:
		et = reporting.EventTypeCircuitsClosing
	case StepDone:
		et = reporting.EventTypeCircuitsDone
	default:
		et = reporting.EventTypeCircuitsFailed
		severity = reporting.SeverityWarn
	}
	e := &RefreshEvent{
		BaseEvent: reporting.NewBaseEvent(et, "Circuits", severity),
		Step:      p.Step,
		Count:     p.Count,
	}
	if p.Err != nil {
		e.Error = p.Err.Error()
	}
	e.WithCorrelation(p.CorrelationID)
	o.bus.Publish(e)
}
