package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const DefaultEventsChannel = "drafts:document-events"

type EventType string

const (
	EventRenamed   EventType = "renamed"
	EventPublished EventType = "published"
)

// Event is a document lifecycle notification sent between instances, or from
// hosts that do not call DocumentEvents in process.
type Event struct {
	Type     EventType `json:"type"`
	Old      string    `json:"old,omitempty"`
	New      string    `json:"new,omitempty"`
	Document string    `json:"document,omitempty"`
	Owner    string    `json:"owner,omitempty"`
	DraftID  *uint64   `json:"draft_id,omitempty"`
}

func RenamedEvent(oldRef, newRef string) *Event {
	return &Event{Type: EventRenamed, Old: oldRef, New: newRef}
}

func PublishedEvent(ref, ownerID string, draftID *uint64) *Event {
	return &Event{Type: EventPublished, Document: ref, Owner: ownerID, DraftID: draftID}
}

var ErrUnknownEvent = errors.New("unknown document event")

// DecodeEvent parses and validates one event payload.
func DecodeEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode document event: %w", err)
	}
	switch ev.Type {
	case EventRenamed:
		if ev.Old == "" || ev.New == "" {
			return nil, fmt.Errorf("renamed event needs old and new refs")
		}
	case EventPublished:
		if ev.Document == "" || ev.Owner == "" {
			return nil, fmt.Errorf("published event needs document and owner")
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, ev.Type)
	}
	return &ev, nil
}

// Dispatch hands ev to the matching DocumentEvents call.
func Dispatch(ctx context.Context, h DocumentEvents, ev *Event) error {
	switch ev.Type {
	case EventRenamed:
		return h.OnRenamed(ctx, ev.Old, ev.New)
	case EventPublished:
		return h.OnPublished(ctx, ev.Document, ev.Owner, ev.DraftID)
	default:
		return fmt.Errorf("%w %q", ErrUnknownEvent, ev.Type)
	}
}

// EventPublisher sends events to a pub/sub channel.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, v any) error
}

// EventSource delivers raw event payloads until ctx is done.
type EventSource interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// Notifier forwards DocumentEvents calls onto a channel so every instance sees them.
type Notifier struct {
	pub     EventPublisher
	channel string
}

func NewNotifier(pub EventPublisher, channel string) *Notifier {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &Notifier{pub: pub, channel: channel}
}

func (n *Notifier) Notify(ctx context.Context, ev *Event) error {
	return n.pub.PublishJSON(ctx, n.channel, ev)
}

func (n *Notifier) OnRenamed(ctx context.Context, oldRef, newRef string) error {
	return n.Notify(ctx, RenamedEvent(oldRef, newRef))
}

func (n *Notifier) OnPublished(ctx context.Context, ref, ownerID string, draftID *uint64) error {
	return n.Notify(ctx, PublishedEvent(ref, ownerID, draftID))
}

// Subscriber applies events from a channel to a DocumentEvents handler.
type Subscriber struct {
	src     EventSource
	channel string
	handler DocumentEvents
	logger  *zap.Logger
}

func NewSubscriber(src EventSource, channel string, h DocumentEvents, l *zap.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Subscriber{src: src, channel: channel, handler: h, logger: l.Named("DraftEvents")}
}

// Run blocks until ctx is done or the subscription ends. Bad payloads and handler
// failures are logged and skipped.
func (s *Subscriber) Run(ctx context.Context) error {
	msgs, err := s.src.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}
	s.logger.Info("listening for document events", zap.String("channel", s.channel))
	for payload := range msgs {
		s.handle(ctx, payload)
	}
	return ctx.Err()
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	ev, err := DecodeEvent([]byte(payload))
	if err != nil {
		s.logger.Warn("dropping document event", zap.String("payload", payload), zap.Error(err))
		return
	}
	if err := Dispatch(ctx, s.handler, ev); err != nil {
		s.logger.Error("document event failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
