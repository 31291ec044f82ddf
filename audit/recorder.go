package audit

import (
	"context"
	"time"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/logging"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Recorder subscribes to the message topics and appends every observed
// message to a Log. Append failures are logged and reported to the publisher
// but never block message flow.
type Recorder struct {
	log          Log
	logger       logging.Logger
	unsubscribes []func()
}

// NewRecorder attaches a Recorder to the bus.
func NewRecorder(b *bus.Bus, log Log, optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Recorder{log: log, logger: opts.Logger}
	r.unsubscribes = append(r.unsubscribes,
		b.Subscribe(bus.TopicMessageIncoming, func(ctx context.Context, ev bus.Event) error {
			return r.record(ctx, DirectionInbound, ev.(bus.MessageIncoming).Message)
		}),
		b.Subscribe(bus.TopicMessageOutgoing, func(ctx context.Context, ev bus.Event) error {
			return r.record(ctx, DirectionOutbound, ev.(bus.MessageOutgoing).Message)
		}),
	)
	return r
}

// Close detaches the Recorder from the bus.
func (r *Recorder) Close() {
	for _, unsub := range r.unsubscribes {
		unsub()
	}
}

func (r *Recorder) record(ctx context.Context, direction Direction, msg core.Message) error {
	entry := Entry{
		ID:         core.NewID(),
		Direction:  direction,
		Message:    msg,
		RecordedAt: time.Now().UTC(),
	}
	if err := r.log.Append(ctx, entry); err != nil {
		r.logger.Error("audit append failed", "direction", string(direction), "message_id", msg.ID, "error", err)
		return err
	}
	return nil
}
