package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const componentNATS = "natsbus"

var ErrNoDecoder = errors.New("natsbus: no decoder registered for subject")

// Conn is the part of *nats.Conn the bus needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Connect dials NATS with unlimited reconnects, logging connection state changes.
func Connect(url, name string, tel observability.Observability) (*nats.Conn, error) {
	if tel == nil {
		tel = observability.Nop()
	}
	log := tel.Logger().With(observability.F("component", componentNATS))
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats_disconnected", observability.F("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats_reconnected", observability.F("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect %s: %w", url, err)
	}
	return nc, nil
}

// Bus publishes events as JSON on the subject named after the event and consumes
// them through a queue group, so each message is handled by one replica.
type Bus struct {
	conn           Conn
	group          string
	decoders       map[string]domoutbox.Decoder
	handlerTimeout time.Duration

	mu   sync.Mutex
	subs []*nats.Subscription
	err  error

	log      observability.Logger
	consumed observability.Counter // events_consumed_total{event,outcome}
}

// New builds a bus. decoders maps subject to the decoder for inbound payloads and is
// copied; subjects without a decoder cannot be subscribed.
func New(conn Conn, group string, decoders map[string]domoutbox.Decoder, tel observability.Observability) *Bus {
	if tel == nil {
		tel = observability.Nop()
	}
	d := make(map[string]domoutbox.Decoder, len(decoders))
	for subj, dec := range decoders {
		d[subj] = dec
	}
	return &Bus{
		conn:           conn,
		group:          group,
		decoders:       d,
		handlerTimeout: 30 * time.Second,
		log:            tel.Logger().With(observability.F("component", componentNATS)),
		consumed:       tel.Metrics().Counter(observability.MEventsConsumed),
	}
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("natsbus: encode %s: %w", e.EventName(), err)
	}

	msg := nats.NewMsg(e.EventName())
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsbus: publish %s: %w", e.EventName(), err)
	}
	logctx.FromOr(ctx, b.log).Debug("event_published", observability.F("event", e.EventName()))
	return nil
}

// Subscribe registers h for the subject. A failed subscription is logged and kept
// for Err.
func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.decoders[eventName]; !ok {
		b.fail(eventName, fmt.Errorf("%w: %s", ErrNoDecoder, eventName))
		return
	}
	sub, err := b.conn.QueueSubscribe(eventName, b.group, func(msg *nats.Msg) {
		b.handleMsg(eventName, h, msg)
	})
	if err != nil {
		b.fail(eventName, fmt.Errorf("natsbus: subscribe %s: %w", eventName, err))
		return
	}
	if sub != nil {
		b.subs = append(b.subs, sub)
	}
	b.log.Info("event_subscribed",
		observability.F("event", eventName),
		observability.F("queue_group", b.group),
	)
}

func (b *Bus) fail(eventName string, err error) {
	b.err = errors.Join(b.err, err)
	b.log.Error("event_subscribe_failed",
		observability.F("event", eventName),
		observability.F("error", err.Error()),
	)
}

// Err reports subscription failures so far.
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Close drains every subscription so in-flight messages finish.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var errs error
	for _, s := range subs {
		if err := s.Drain(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// handleMsg processes one delivery. Nothing that happens here may affect the
// next message: decode errors, handler errors and panics all end with a log line.
func (b *Bus) handleMsg(eventName string, h domoutbox.Handler, msg *nats.Msg) {
	logger := b.log.With(observability.F("event", eventName))
	defer func() {
		if r := recover(); r != nil {
			b.count(eventName, "panic")
			logger.Error("event_handler_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()

	event, err := b.decoders[eventName](msg.Data)
	if err != nil {
		b.count(eventName, "malformed")
		logger.Warn("event_malformed",
			observability.F("error", err.Error()),
			observability.F("payload_bytes", len(msg.Data)),
		)
		return
	}

	ctx := context.Background()
	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	}
	ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()
	ctx = logctx.With(ctx, logger)

	if err := h(ctx, event); err != nil {
		b.count(eventName, "handler_error")
		logger.Warn("event_handler_error", observability.F("error", err.Error()))
	}
}

func (b *Bus) count(event, outcome string) {
	b.consumed.Add(1,
		observability.L("event", event),
		observability.L("outcome", outcome),
	)
}
