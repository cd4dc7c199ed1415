package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

type tagValue struct {
	value float64
	at    time.Time
}

// OPCUA keeps the latest value of each monitored tag, fed by an OPC UA
// subscription. Read serves values no older than the staleness window.
type OPCUA struct {
	cfg     config.OPCUAConfig
	handles map[uint32]string // client handle → metric

	mu     sync.RWMutex
	latest map[string]tagValue

	now func() time.Time
}

// NewOPCUA validates cfg and returns an unstarted source.
func NewOPCUA(cfg config.OPCUAConfig) (*OPCUA, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("sensor: opcua endpoint is required")
	}
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("sensor: opcua needs at least one node")
	}
	handles := make(map[uint32]string, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		handles[uint32(i+1)] = n.Metric
	}
	return &OPCUA{
		cfg:     cfg,
		handles: handles,
		latest:  make(map[string]tagValue),
		now:     time.Now,
	}, nil
}

// Run connects, subscribes to every configured node and applies
// notifications until ctx is cancelled.
func (o *OPCUA) Run(ctx context.Context) error {
	client, err := opcua.NewClient(o.cfg.Endpoint, o.clientOptions()...)
	if err != nil {
		return fmt.Errorf("sensor: opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("sensor: opcua connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	notifyCh := make(chan *opcua.PublishNotificationData, len(o.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: o.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		return fmt.Errorf("sensor: opcua subscribe: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sub.Cancel(closeCtx)
	}()

	for i, n := range o.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(n.NodeID)
		if err != nil {
			return fmt.Errorf("sensor: opcua parse node id %q: %w", n.NodeID, err)
		}
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, uint32(i+1))
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			return fmt.Errorf("sensor: opcua monitor %q: %w", n.NodeID, err)
		}
		if len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
			return fmt.Errorf("sensor: opcua monitor %q rejected", n.NodeID)
		}
	}
	slog.Info("sensor: opcua subscription active", "endpoint", o.cfg.Endpoint, "nodes", len(o.cfg.Nodes))

	for {
		select {
		case <-ctx.Done():
			return nil
		case notif := <-notifyCh:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				slog.Warn("sensor: opcua notification error", "err", notif.Error)
				continue
			}
			if data, ok := notif.Value.(*ua.DataChangeNotification); ok {
				o.apply(data)
			}
		}
	}
}

// Read returns the current value of every tag updated within the staleness
// window.
func (o *OPCUA) Read(_ context.Context) (types.SensorSnapshot, error) {
	now := o.now()
	cutoff := now.Add(-o.cfg.Staleness)

	o.mu.RLock()
	defer o.mu.RUnlock()
	readings := make(map[string]float64, len(o.latest))
	for metric, tv := range o.latest {
		if tv.at.After(cutoff) {
			readings[metric] = tv.value
		}
	}
	return types.NewSnapshot(now.UTC(), readings), nil
}

func (o *OPCUA) apply(data *ua.DataChangeNotification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, item := range data.MonitoredItems {
		metric, ok := o.handles[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		if item.Value.Status != ua.StatusOK {
			slog.Debug("sensor: opcua bad quality value", "metric", metric, "status", item.Value.Status)
			continue
		}
		v, ok := variantToFloat(item.Value.Value)
		if !ok {
			slog.Warn("sensor: opcua unsupported value type", "metric", metric)
			continue
		}
		at := item.Value.SourceTimestamp
		if at.IsZero() {
			at = item.Value.ServerTimestamp
		}
		if at.IsZero() {
			at = o.now()
		}
		o.latest[metric] = tagValue{value: v, at: at}
	}
}

func (o *OPCUA) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(o.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(o.cfg.SecurityPolicy)),
		opcua.ApplicationName("conveyortwin"),
		opcua.AutoReconnect(true),
	}
	if o.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(o.cfg.Username, o.cfg.Password()))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "sign_and_encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}
