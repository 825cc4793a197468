package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventTopic is the pub/sub topic lifecycle events are published on.
const EventTopic = "behavior.events"

// Kind is a behavior lifecycle event kind.
type Kind string

const (
	KindCreated  Kind = "created"
	KindStarted  Kind = "started"
	KindFinished Kind = "finished"
)

// Event reports a lifecycle transition of one behavior.
type Event struct {
	Kind       Kind `json:"kind"`
	BehaviorID ID   `json:"behaviorId"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s behavior (id: %s)", e.Kind, e.BehaviorID)
}

// bus broadcasts events to every live subscriber in emission order.
// Emitters append to an unbounded queue drained by one dispatcher
// goroutine, so a slow subscriber delays delivery but never blocks an
// emitter.
type bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger

	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newBus(logger *slog.Logger, buffer int64) *bus {
	b := &bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            buffer,
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NewSlogLogger(logger)),
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// publish queues e for the dispatcher. Events published after close are
// dropped.
func (b *bus) publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, e)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *bus) dispatch() {
	defer close(b.done)
	for {
		b.mu.Lock()
		batch, closed := b.pending, b.closed
		b.pending = nil
		b.mu.Unlock()
		if closed {
			return
		}
		for _, e := range batch {
			b.send(e)
		}
		if len(batch) == 0 {
			<-b.wake
		}
	}
}

// send publishes e and returns once every subscriber has taken it.
func (b *bus) send(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("encode behavior event", "error", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(EventTopic, msg); err != nil {
		b.logger.Debug("drop behavior event", "event", e.String(), "error", err)
	}
}

// subscribe decodes the topic into Events until ctx is done or the bus
// closes.
func (b *bus) subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, EventTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", EventTopic, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				b.logger.Error("decode behavior event", "message_uuid", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// close stops the dispatcher and the pub/sub. Queued events that were
// not yet delivered are dropped.
func (b *bus) close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.pending = nil
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	err := b.pubsub.Close()
	<-b.done
	return err
}
