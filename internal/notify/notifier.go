package notify

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/internal/ring"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Event states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Event is one firing or resolved transition of an alert type.
type Event struct {
	ID         string          `json:"id"`
	Type       types.AlertType `json:"type"`
	Severity   types.Severity  `json:"severity"`
	Message    string          `json:"message"`
	Value      float64         `json:"value"`
	FiredAt    time.Time       `json:"fired_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	State      string          `json:"state"`
}

// Notifier tracks alert transitions across cycles and delivers webhooks.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	cooldown time.Duration
	webhooks []config.WebhookConfig
	client   *http.Client

	mu       sync.Mutex
	active   map[types.AlertType]*Event
	lastFire map[types.AlertType]time.Time
	history  *ring.Buffer[Event] // recently resolved events

	inflight sync.WaitGroup
	now      func() time.Time
	newID    func() string
}

// New creates a Notifier from the alert configuration.
func New(cfg config.AlertsConfig) *Notifier {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Notifier{
		cooldown: cooldown,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		active:   make(map[types.AlertType]*Event),
		lastFire: make(map[types.AlertType]time.Time),
		history:  ring.New[Event](maxHistoryLen),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Observe compares the current alert set with the firing events. New alert
// types fire unless they fired within the cooldown; types no longer present
// resolve. Webhooks are delivered asynchronously.
func (n *Notifier) Observe(alerts []types.Alert) {
	current := make(map[types.AlertType]types.Alert, len(alerts))
	for _, a := range alerts {
		current[a.Type] = a
	}
	now := n.now()

	var outgoing []Event
	n.mu.Lock()
	for _, typ := range types.AlertTypes {
		a, firing := current[typ]
		ev, active := n.active[typ]

		switch {
		case firing && active:
			ev.Value = a.Value
			ev.Message = a.Message
		case firing && now.Sub(n.lastFire[typ]) > n.cooldown:
			ev := &Event{
				ID:       n.newID(),
				Type:     typ,
				Severity: a.Severity,
				Message:  a.Message,
				Value:    a.Value,
				FiredAt:  now,
				State:    StateFiring,
			}
			n.active[typ] = ev
			n.lastFire[typ] = now
			outgoing = append(outgoing, *ev)
			slog.Warn("notify: alert fired", "type", typ, "severity", a.Severity, "value", a.Value)
		case !firing && active:
			resolved := now
			ev.State = StateResolved
			ev.ResolvedAt = &resolved
			delete(n.active, typ)
			n.history.Push(*ev)
			outgoing = append(outgoing, *ev)
			slog.Info("notify: alert resolved", "type", typ)
		}
	}
	n.mu.Unlock()

	for _, ev := range outgoing {
		n.inflight.Add(1)
		go func(ev Event) {
			defer n.inflight.Done()
			n.deliver(ev)
		}(ev)
	}
}

// Active returns all firing events plus those resolved within the past
// hour, newest first.
func (n *Notifier) Active() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.now().Add(-recentWindow)
	out := make([]Event, 0, len(n.active))
	for _, ev := range n.active {
		out = append(out, *ev)
	}
	for _, ev := range n.history.Last(0) {
		if ev.ResolvedAt != nil && ev.ResolvedAt.After(cutoff) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Resolved returns up to limit of the most recently resolved events, newest
// first. limit <= 0 returns all retained events.
func (n *Notifier) Resolved(limit int) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	evs := n.history.Last(limit)
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs
}

// Wait blocks until every in-flight webhook delivery has finished.
func (n *Notifier) Wait() { n.inflight.Wait() }
