package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Bridge connects the in-process emitters to NATS: inbound change events
// arrive on a subject and feed the engine's emitter; synthetic events
// produced by rule writes publish to an outbound subject.
type Bridge struct {
	nc      *nats.Conn
	inbound *Emitter
	subject string
	sub     *nats.Subscription
	logger  *slog.Logger
}

// BridgeConfig configures the NATS bridge.
type BridgeConfig struct {
	URL            string
	InboundSubject string // subscribed; payloads are JSON ChangeEvents
	OutboundPrefix string // published as <prefix>.<entity_type>
}

// NewBridge connects to NATS and subscribes the inbound emitter to the
// configured subject.
func NewBridge(cfg BridgeConfig, inbound *Emitter, logger *slog.Logger) (*Bridge, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("relic-engine"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := &Bridge{
		nc:      nc,
		inbound: inbound,
		subject: cfg.OutboundPrefix,
		logger:  logger,
	}

	sub, err := nc.Subscribe(cfg.InboundSubject, b.handleInbound)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.InboundSubject, err)
	}
	b.sub = sub
	return b, nil
}

func (b *Bridge) handleInbound(msg *nats.Msg) {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.logger.Warn("dropping malformed change event",
			"subject", msg.Subject, "error", err)
		return
	}
	if event.EntityType == "" || event.EntityID == "" {
		b.logger.Warn("dropping change event without entity identity",
			"subject", msg.Subject)
		return
	}
	b.inbound.Emit(event)
}

// Deliver publishes a synthetic event to the outbound subject; it lets
// the bridge subscribe directly to the engine's outbound emitter.
func (b *Bridge) Deliver(event ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshal change event", "error", err)
		return
	}
	subject := b.subject + "." + event.EntityType
	if err := b.nc.Publish(subject, payload); err != nil {
		b.logger.Error("publish change event", "subject", subject, "error", err)
	}
}

// Close drains the subscription and closes the connection.
func (b *Bridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			b.nc.Close()
			return err
		}
	}
	return b.nc.Drain()
}
