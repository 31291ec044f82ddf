package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/logging"
)

// Sink receives fully processed feedback items.
type Sink interface {
	Deliver(ctx context.Context, item Item) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, item Item) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, item Item) error { return f(ctx, item) }

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Analyzer defaults to the keyword analyzer if nil.
	Analyzer Analyzer

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Pipeline consumes incoming json messages carrying feedback payloads and
// runs them through validation, enrichment, analysis and distribution. One
// stage failing drops that item only; the subscription stays healthy.
type Pipeline struct {
	bus         *bus.Bus
	analyzer    Analyzer
	logger      logging.Logger
	sinks       []Sink
	unsubscribe func()
}

// NewPipeline attaches a Pipeline to the bus.
func NewPipeline(b *bus.Bus, sinks []Sink, optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{
		Analyzer: NewKeywordAnalyzer(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Analyzer == nil {
		opts.Analyzer = NewKeywordAnalyzer()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	p := &Pipeline{
		bus:      b,
		analyzer: opts.Analyzer,
		logger:   opts.Logger,
		sinks:    sinks,
	}
	p.unsubscribe = b.Subscribe(bus.TopicMessageIncoming, p.onMessage)
	return p
}

// Close detaches the Pipeline from the bus.
func (p *Pipeline) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

func (p *Pipeline) onMessage(ctx context.Context, ev bus.Event) error {
	msg := ev.(bus.MessageIncoming).Message
	if msg.Type != core.MessageTypeJSON {
		return nil
	}
	item, ok := FromMessage(msg)
	if !ok {
		return nil
	}

	if err := p.process(ctx, item); err != nil {
		p.logger.Warn("feedback item dropped", "message_id", msg.ID, "source", item.Source, "error", err)
		p.publishError(ctx, msg.FromAgent, err)
	}
	// Stage failures never propagate to the publisher.
	return nil
}

// Process runs a single item through the full pipeline. Exposed for callers
// feeding feedback from outside the mesh (batch imports, tests).
func (p *Pipeline) Process(ctx context.Context, item Item) error {
	return p.process(ctx, item)
}

func (p *Pipeline) process(ctx context.Context, item Item) error {
	if err := validate(item); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	item = enrich(item)

	sentiment, err := p.analyzer.Analyze(ctx, item)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	item.Sentiment = sentiment

	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("distribute: %w", errors.Join(errs...))
	}

	p.logger.Debug("feedback item distributed", "feedback_id", item.ID, "sentiment", string(item.Sentiment), "sinks", len(p.sinks))
	return nil
}

func (p *Pipeline) publishError(ctx context.Context, agentID string, cause error) {
	ev := bus.Error{Code: core.CodeProcessingError, Message: cause.Error(), AgentID: agentID}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Warn("feedback error event publish failed", "error", err)
	}
}
