package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 60 * time.Second
	backoffJitter  = 0.25
	connectTimeout = 5 * time.Second
)

// Envelope types.
const (
	TypeState      = "state"
	TypeAlerts     = "alerts"
	TypeSimulation = "simulation"
)

// Envelope is the JSON document published for every message.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type message struct {
	subject string
	body    []byte
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// dialFunc opens a bus connection. Abstracted so tests can inject a fake.
type dialFunc func(ctx context.Context, cfg config.BusConfig) (Conn, error)

// Publisher buffers envelopes and ships them to NATS.
type Publisher struct {
	cfg config.BusConfig
	buf chan message

	dialFn     dialFunc
	newBackOff func() backoff.BackOff
	newID      func() string
	now        func() time.Time
}

// New creates a Publisher for the given bus configuration.
func New(cfg config.BusConfig) *Publisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = config.DefaultSubjectPrefix
	}
	return &Publisher{
		cfg:        cfg,
		buf:        make(chan message, size),
		dialFn:     defaultDial,
		newBackOff: defaultBackOff,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Subject returns the full subject for an envelope type.
func (p *Publisher) Subject(typ string) string {
	return p.cfg.SubjectPrefix + "." + subjectSuffix(typ)
}

func subjectSuffix(typ string) string {
	if typ == TypeSimulation {
		return "simulations"
	}
	return typ
}

// PublishState enqueues a state envelope.
func (p *Publisher) PublishState(s types.OperationalState) {
	p.enqueue(TypeState, s)
}

// PublishAlerts enqueues the current alert set. Empty sets are skipped.
func (p *Publisher) PublishAlerts(alerts []types.Alert) {
	if len(alerts) == 0 {
		return
	}
	p.enqueue(TypeAlerts, alerts)
}

// PublishSimulation enqueues a simulation result envelope.
func (p *Publisher) PublishSimulation(res types.SimulationResult) {
	p.enqueue(TypeSimulation, res)
}

func (p *Publisher) enqueue(typ string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("publisher: encode payload", "type", typ, "err", err)
		return
	}
	body, err := json.Marshal(Envelope{
		ID:        p.newID(),
		Type:      typ,
		Timestamp: p.now().UTC(),
		Data:      data,
	})
	if err != nil {
		slog.Error("publisher: encode envelope", "type", typ, "err", err)
		return
	}

	msg := message{subject: p.Subject(typ), body: body}
	select {
	case p.buf <- msg:
	default:
		select {
		case <-p.buf:
			slog.Warn("publisher: buffer full, evicted oldest message",
				"type", typ, "buffer_cap", cap(p.buf))
		default:
		}
		select {
		case p.buf <- msg:
		default:
		}
	}
}

// Pending returns the number of buffered messages.
func (p *Publisher) Pending() int { return len(p.buf) }

// Run drains the buffer to the bus, reconnecting with backoff when the
// connection fails. Run blocks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		var conn Conn
		dial := func() error {
			c, err := p.dialFn(ctx, p.cfg)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}
		notify := func(err error, wait time.Duration) {
			slog.Error("publisher: dial failed, will retry",
				"url", p.cfg.URL,
				"err", err,
				"retry_in", wait)
		}
		if err := backoff.RetryNotify(dial, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
			return
		}

		slog.Info("publisher: connected", "url", p.cfg.URL)
		err := p.drain(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		slog.Warn("publisher: connection lost, will reconnect", "url", p.cfg.URL, "err", err)
	}
}

// drain publishes buffered messages until a publish fails or ctx is
// cancelled. A failed message is put back if there is room.
func (p *Publisher) drain(ctx context.Context, conn Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.buf:
			if err := conn.Publish(msg.subject, msg.body); err != nil {
				select {
				case p.buf <- msg:
				default:
				}
				return fmt.Errorf("publish %s: %w", msg.subject, err)
			}
			slog.Debug("publisher: message delivered", "subject", msg.subject)
		}
	}
}

func defaultDial(_ context.Context, cfg config.BusConfig) (Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("publisher: connect: %w", err)
	}
	return nc, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffInitial
	b.MaxInterval = backoffMax
	b.RandomizationFactor = backoffJitter
	b.MaxElapsedTime = 0
	return b
}
