package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/utils"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/ws"
)

// drainTimeout bounds the forwarding of events still queued at shutdown.
const drainTimeout = 10 * time.Second

// Notifier pushes a message to the websocket listeners of a topic.
type Notifier interface {
	Publish(topic string, event any)
}

// MessagePublisher delivers a message to its pub/sub topic.
type MessagePublisher interface {
	Publish(ctx context.Context, message pubsub.Publishable) error
}

// EventMessage is the wire form of an escrow event, on pub/sub and on
// websockets alike.
type EventMessage struct {
	GameId  uint64          `json:"gameId"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`

	topic string
}

func (m EventMessage) GetEventTopicName() string {
	return m.topic
}

func newEventMessage(topic string, ev escrow.Event) EventMessage {
	return EventMessage{
		GameId:  ev.Game(),
		Name:    ev.EventName(),
		Payload: utils.RawJson(ev),
		topic:   topic,
	}
}

type BridgeConfig struct {
	EventTopic  string
	PayoutTopic string
	// NotifyFromSubscription leaves websocket pushes to HandleEventMessage,
	// so every replica sees events committed by any other.
	NotifyFromSubscription bool
}

// EventBridge implements escrow.Publisher. It pushes committed events to
// websocket listeners and, when a MessagePublisher is set, forwards them and
// the payouts they carry to pub/sub from a background worker.
type EventBridge struct {
	notifier  Notifier
	publisher MessagePublisher
	cfg       BridgeConfig

	mu      sync.Mutex
	pending []escrow.Event
	wake    chan struct{}
}

func NewEventBridge(notifier Notifier, publisher MessagePublisher, cfg BridgeConfig) *EventBridge {
	return &EventBridge{
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
	}
}

// Publish never blocks. Events for pub/sub are queued for Run whether or not
// the caller's context is still alive, since they are already committed.
func (b *EventBridge) Publish(_ context.Context, events []escrow.Event) {
	for _, ev := range events {
		if b.publisher == nil || !b.cfg.NotifyFromSubscription {
			b.notify(newEventMessage(b.cfg.EventTopic, ev))
		}
	}
	if b.publisher == nil || len(events) == 0 {
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, events...)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run forwards queued events until ctx is done, then drains what is left
// within drainTimeout.
func (b *EventBridge) Run(ctx context.Context) {
	out := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			b.drain(out)
			return
		case <-b.wake:
			for _, ev := range b.take() {
				b.forward(out, ev)
			}
		}
	}
}

func (b *EventBridge) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	events := b.take()
	for _, ev := range events {
		b.forward(ctx, ev)
	}
	if len(events) > 0 {
		log.Info().Int("events", len(events)).Msg("Drained event queue")
	}
}

func (b *EventBridge) take() []escrow.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.pending
	b.pending = nil
	return events
}

// queued reports how many events wait for Run.
func (b *EventBridge) queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *EventBridge) forward(ctx context.Context, ev escrow.Event) {
	if err := b.publisher.Publish(ctx, newEventMessage(b.cfg.EventTopic, ev)); err != nil {
		log.Error().Err(err).Uint64("gameId", ev.Game()).Str("event", ev.EventName()).Msg("Failed to forward event")
	}
	for _, cmd := range releaseCommands(b.cfg.PayoutTopic, ev) {
		if err := b.publisher.Publish(ctx, cmd); err != nil {
			log.Error().Err(err).Uint64("gameId", ev.Game()).Str("commandId", cmd.Id).Msg("Failed to send release command")
		}
	}
}

// HandleEventMessage is the subscription handler that feeds websocket
// listeners from the event topic.
func (b *EventBridge) HandleEventMessage(_ context.Context, message *gcppubsub.Message) {
	m, err := utils.DecodeJson[EventMessage](message.Data)
	if err != nil {
		log.Warn().Err(err).Msg("Error while parsing event message")
		message.Ack()
		return
	}
	b.notify(m)
	message.Ack()
}

func (b *EventBridge) notify(m EventMessage) {
	if b.notifier == nil {
		return
	}
	b.notifier.Publish(ws.GameTopic(m.GameId), m)
}

func releaseCommands(topic string, ev escrow.Event) []blockchain.Command {
	var payouts []escrow.Payout
	switch e := ev.(type) {
	case escrow.GameSettled:
		payouts = e.Payouts
	case escrow.GameCancelled:
		payouts = e.Payouts
	default:
		return nil
	}
	commands := make([]blockchain.Command, 0, len(payouts))
	for _, p := range payouts {
		commands = append(commands, blockchain.NewReleaseCommand(topic, blockchain.ReleasePayload{
			GameId: ev.Game(),
			To:     string(p.To),
			Amount: p.Amount,
			Reason: ev.EventName(),
		}))
	}
	return commands
}
