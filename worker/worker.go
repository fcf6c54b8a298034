// Package worker implements the fitting request/response contract that runs
// long fits off the caller's path: a single in-flight request at a time,
// progress events delivered while it runs, and cancellation by discarding
// the background computation rather than waiting for it to cooperate.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xpsirf/irf-sim/fitting"
	"github.com/xpsirf/irf-sim/irf"
)

// RequestID is an opaque request identifier: a monotonic counter paired
// with the time it was minted, so ids are both ordered and unique across
// process restarts within the same process.
type RequestID string

var requestSeq uint64

// NewRequestID mints a fresh RequestID.
func NewRequestID() RequestID {
	n := atomic.AddUint64(&requestSeq, 1)
	return RequestID(fmt.Sprintf("%d-%d", n, time.Now().UnixNano()))
}

// FitFermiEdgeRequest asks the host to fit a Fermi-edge model to an observed
// spectrum (spec §4.5/§6).
type FitFermiEdgeRequest struct {
	ID               RequestID
	Energy           []float64
	ObservedSpectrum []float64
	Temp             float64
	FitTemp          bool
	UseGlobalOpt     bool
}

// EstimateIRFRequest asks the host to recover the full IRF parameter vector
// from an observed spectrum (spec §4.6/§6).
type EstimateIRFRequest struct {
	ID               RequestID
	ObservedSpectrum []float64
	Temp             float64
	Bounds           *irf.Bounds
	MaxIterations    int // defaults to 50 when <= 0
}

// ProgressMessage reports fractional progress for the request named by ID.
// Progress is iteration/maxIterations*100, clamped to 100.
type ProgressMessage struct {
	ID        RequestID
	Iteration int
	Fitness   float64
	Progress  float64
}

// ResultMessage carries a request's successful terminal outcome. Result
// holds either a *fitting.FermiEdgeFitResult or a *fitting.IRFEstimationResult.
type ResultMessage struct {
	ID     RequestID
	Result interface{}
}

// ErrorMessage carries a request's terminal failure.
type ErrorMessage struct {
	ID    RequestID
	Error string
}

// fermiEdgeProgressMaxIter is the nominal iteration count used to compute
// Fermi-edge progress percentages (spec §6); the fitter itself runs its own
// DE/LM schedule, which need not match this nominal count exactly.
const fermiEdgeProgressMaxIter = 100

// state is the fit request lifecycle of spec §4.8.
type state int

const (
	stateIdle state = iota
	stateRunning
)

// Host runs at most one fit request at a time, delivering Progress messages
// on Progress and a single terminal Result or Error message per request on
// Results/Errors. Host is not safe for concurrent Start calls from multiple
// goroutines without external synchronization beyond the rejection
// contract below; Cancel is always safe.
type Host struct {
	Progress chan ProgressMessage
	Results  chan ResultMessage
	Errors   chan ErrorMessage

	mu      sync.Mutex
	state   state
	current RequestID
	cancel  context.CancelFunc
}

// NewHost creates an idle Host with buffered channels large enough for a
// single fit's worth of progress traffic plus its terminal message.
func NewHost() *Host {
	return &Host{
		Progress: make(chan ProgressMessage, 256),
		Results:  make(chan ResultMessage, 1),
		Errors:   make(chan ErrorMessage, 1),
		state:    stateIdle,
	}
}

// StartFitFermiEdge begins a Fermi-edge fit in a background goroutine. It
// returns an error synchronously, without starting any work, if a request
// is already running (spec §4.8).
func (h *Host) StartFitFermiEdge(req FitFermiEdgeRequest) error {
	ctx, ok := h.begin(req.ID)
	if !ok {
		return fmt.Errorf("a fit is already running")
	}

	go func() {
		defer h.end(req.ID)
		defer h.recoverPanic(req.ID)

		progress := h.progressFunc(ctx, req.ID, fermiEdgeProgressMaxIter)
		res := fitting.FitFermiEdge(req.Energy, req.ObservedSpectrum, req.Temp, req.FitTemp, req.UseGlobalOpt, progress)
		if ctx.Err() != nil {
			return
		}
		h.deliverFermiEdge(req.ID, res)
	}()

	return nil
}

// StartEstimateIRF begins an IRF parameter estimation in a background
// goroutine, synchronously rejecting a second concurrent request.
func (h *Host) StartEstimateIRF(req EstimateIRFRequest) error {
	ctx, ok := h.begin(req.ID)
	if !ok {
		return fmt.Errorf("a fit is already running")
	}

	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = 50
	}

	go func() {
		defer h.end(req.ID)
		defer h.recoverPanic(req.ID)

		progress := h.progressFunc(ctx, req.ID, maxIter)
		res := fitting.EstimateIRF(req.ObservedSpectrum, req.Temp, req.Bounds, maxIter, progress)
		if ctx.Err() != nil {
			return
		}
		h.deliverIRF(req.ID, res)
	}()

	return nil
}

// Dispatch routes a tagged request to the appropriate Start method,
// rejecting unrecognized request types with the fixed terminal error text
// required by spec §4.7.
func (h *Host) Dispatch(req interface{}) error {
	switch r := req.(type) {
	case FitFermiEdgeRequest:
		return h.StartFitFermiEdge(r)
	case EstimateIRFRequest:
		return h.StartEstimateIRF(r)
	default:
		h.Errors <- ErrorMessage{Error: "Unknown message type"}
		return fmt.Errorf("Unknown message type")
	}
}

// Cancel terminates the in-flight request, if any, and rejects it with
// "Operation cancelled" (spec §4.7/§5). The host returns to idle
// immediately; any result the background goroutine produces afterward is
// discarded, never delivered.
func (h *Host) Cancel() {
	h.mu.Lock()
	if h.state != stateRunning {
		h.mu.Unlock()
		return
	}
	id := h.current
	cancel := h.cancel
	h.state = stateIdle
	h.current = ""
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.Errors <- ErrorMessage{ID: id, Error: "Operation cancelled"}
}

// begin transitions idle->running for id, returning a cancellable context
// for the new request. It rejects synchronously (ok=false) if a request is
// already running.
func (h *Host) begin(id RequestID) (context.Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateRunning {
		return nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.state = stateRunning
	h.current = id
	h.cancel = cancel
	return ctx, true
}

// end transitions running->idle for id, provided id is still the current
// request (it may have already been superseded by a Cancel).
func (h *Host) end(id RequestID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == id {
		h.state = stateIdle
		h.current = ""
		h.cancel = nil
	}
}

// progressFunc builds an irf.ProgressFunc that drops events once ctx is
// cancelled or once id has been superseded, so late progress for a
// cancelled request is never delivered (spec §4.8).
func (h *Host) progressFunc(ctx context.Context, id RequestID, maxIterations int) irf.ProgressFunc {
	return func(iteration int, fitness float64) {
		if ctx.Err() != nil {
			return
		}
		if !h.isCurrent(id) {
			return
		}

		progress := float64(iteration) / float64(maxIterations) * 100
		if progress > 100 {
			progress = 100
		}

		h.Progress <- ProgressMessage{
			ID:        id,
			Iteration: iteration,
			Fitness:   fitness,
			Progress:  progress,
		}
	}
}

// recoverPanic guards the computation goroutine against an unexpected
// panic, surfacing it as a terminal error instead of crashing the host.
// Business failures never panic; this exists for genuinely unexpected bugs.
func (h *Host) recoverPanic(id RequestID) {
	if r := recover(); r != nil {
		log.Printf("worker: request %s panicked: %v", id, r)
		if h.isCurrent(id) {
			h.Errors <- ErrorMessage{ID: id, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}
}

func (h *Host) isCurrent(id RequestID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateRunning && h.current == id
}

func (h *Host) deliverFermiEdge(id RequestID, res *fitting.FermiEdgeFitResult) {
	if !h.isCurrent(id) {
		return
	}
	if !res.Success {
		h.Errors <- ErrorMessage{ID: id, Error: res.ErrorMessage}
		return
	}
	h.Results <- ResultMessage{ID: id, Result: res}
}

func (h *Host) deliverIRF(id RequestID, res *fitting.IRFEstimationResult) {
	if !h.isCurrent(id) {
		return
	}
	if !res.Success {
		h.Errors <- ErrorMessage{ID: id, Error: res.Message}
		return
	}
	h.Results <- ResultMessage{ID: id, Result: res}
}
