package sensor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Gateway reads sensor values from a field gateway's text exposition.
type Gateway struct {
	endpoint string
	prefix   string
	client   *http.Client
	now      func() time.Time
}

// NewGateway builds a Gateway and its HTTP client for src.
func NewGateway(src config.SourceConfig) (*Gateway, error) {
	if src.Endpoint == "" {
		return nil, fmt.Errorf("sensor: gateway endpoint is required")
	}
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = config.DefaultSourceTimeout
	}
	return &Gateway{
		endpoint: src.Endpoint,
		prefix:   src.Prefix,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: src.Auth},
			Timeout:   timeout,
		},
		now: time.Now,
	}, nil
}

// Read fetches the exposition and sums each known metric family. Families
// absent from the response are left out of the snapshot.
func (g *Gateway) Read(ctx context.Context) (types.SensorSnapshot, error) {
	mfs, err := fetchMetrics(ctx, g.client, g.endpoint)
	if err != nil {
		return types.SensorSnapshot{}, fmt.Errorf("sensor: gateway %s: %w", g.endpoint, err)
	}
	readings := make(map[string]float64, len(Metrics))
	for _, m := range Metrics {
		if v, ok := sumFamily(mfs[g.prefix+m]); ok {
			readings[m] = v
		}
	}
	snap := types.NewSnapshot(g.now().UTC(), readings)
	if missing := snap.MissingOf(types.StateMetrics); len(missing) > 0 {
		slog.Debug("sensor: gateway exposition incomplete", "missing", missing)
	}
	return snap, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all gauge, counter or untyped values in mf. It reports
// false when mf is absent or carries no samples.
func sumFamily(mf *dto.MetricFamily) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	var total float64
	found := false
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		default:
			continue
		}
		found = true
	}
	return total, found
}
