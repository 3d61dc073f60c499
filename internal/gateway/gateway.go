package gateway

import (
	"context"
	"fmt"

	"github.com/user/marmot/internal/types"
)

// Processor runs one full agentic turn for an inbound message.
type Processor interface {
	ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error)
}

// Gateway funnels inbound messages into the queue and runs each one
// through the processor when its lane comes up.
type Gateway struct {
	processor Processor
	Queue     *Queue
}

// New creates a Gateway with the given concurrency limit for
// simultaneous turns.
func New(processor Processor, maxConcurrent int64) *Gateway {
	g := &Gateway{
		processor: processor,
		Queue:     NewQueue(maxConcurrent),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the queue. Must be called before HandleInbound.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop drains the queue and waits for in-flight turns.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the turn's final response.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// WithSink attaches a progress event sink to the run.
func WithSink(sink types.EventSink) RunOption {
	return func(r *Run) { r.Sink = sink }
}

// HandleInbound wraps the message in a Run and enqueues it on its
// conversation's lane.
func (g *Gateway) HandleInbound(msg *types.IncomingMessage, opts ...RunOption) error {
	run := NewRun(msg)
	for _, opt := range opts {
		opt(run)
	}
	return g.Queue.Enqueue(run)
}

func (g *Gateway) process(run *Run) error {
	answer, err := g.processor.ProcessTurn(run.Ctx, run.Message, run.Sink)
	if err != nil {
		return fmt.Errorf("process turn: %w", err)
	}
	if run.OnComplete != nil {
		run.OnComplete(answer)
	}
	return nil
}
