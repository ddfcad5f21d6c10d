package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/provider/resilience"
	"github.com/presenceguard/presenceguard/internal/proximity"
)

// Scan modes understood by the classroom gateway.
const (
	scanModeQuick    = "quick"
	scanModeExtended = "extended"
)

// GatewayConfig holds configuration for the gateway scan driver.
type GatewayConfig struct {
	// BaseURL is the classroom gateway's API base URL (required).
	BaseURL string

	// APIKey authenticates the agent to the gateway (optional).
	APIKey string

	// HTTPClient is the HTTP client to use (optional). The default allows
	// requests long enough to cover an extended discovery scan.
	HTTPClient *resilience.Client

	// Logger for driver operations.
	Logger zerolog.Logger
}

// GatewayDriver is a proximity.Driver backed by the classroom gateway's
// streaming scan API. The gateway streams one JSON advertisement per line
// until the client disconnects.
type GatewayDriver struct {
	baseURL    string
	apiKey     string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewGatewayDriver creates a new gateway scan driver.
func NewGatewayDriver(cfg GatewayConfig) *GatewayDriver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig("scan-gateway")
		clientCfg.Timeout = 30 * time.Second
		httpClient = resilience.NewClient(clientCfg)
	}
	return &GatewayDriver{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// StartQuickScan begins a short low-latency scan.
func (d *GatewayDriver) StartQuickScan(ctx context.Context) (proximity.ScanHandle, error) {
	return d.start(ctx, scanModeQuick)
}

// StartExtendedDiscovery begins a longer discovery-mode scan.
func (d *GatewayDriver) StartExtendedDiscovery(ctx context.Context) (proximity.ScanHandle, error) {
	return d.start(ctx, scanModeExtended)
}

func (d *GatewayDriver) start(ctx context.Context, mode string) (proximity.ScanHandle, error) {
	ctx, cancel := context.WithCancel(ctx)

	endpoint := fmt.Sprintf("%s/v1/scan/stream?mode=%s", d.baseURL, url.QueryEscape(mode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req) //nolint:bodyclose // closed by the handle
	if err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s scan: %w", mode, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	h := &gatewayScan{
		results: make(chan proximity.Advertisement, 32),
		done:    make(chan struct{}),
		cancel:  cancel,
		body:    resp.Body,
	}
	go h.consume(d.logger)

	d.logger.Debug().Str("mode", mode).Msg("gateway scan started")
	return h, nil
}

// gatewayScan is a running streaming scan. Stop tears down the HTTP stream,
// which in turn ends the consume goroutine.
type gatewayScan struct {
	results  chan proximity.Advertisement
	done     chan struct{}
	cancel   context.CancelFunc
	body     io.ReadCloser
	stopOnce sync.Once
}

// Results delivers decoded advertisements until the scan ends.
func (h *gatewayScan) Results() <-chan proximity.Advertisement {
	return h.results
}

// Stop releases the gateway stream. Safe to call more than once.
func (h *gatewayScan) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.cancel()
		h.body.Close()
	})
}

type advertisementLine struct {
	DeviceAddress string  `json:"device_address"`
	RSSI          float64 `json:"rssi"`
	Data          string  `json:"data"` // base64 advertisement payload
}

func (h *gatewayScan) consume(logger zerolog.Logger) {
	defer close(h.results)

	dec := json.NewDecoder(h.body)
	for {
		var line advertisementLine
		if err := dec.Decode(&line); err != nil {
			// EOF, closed body after Stop, or a gateway fault: either way
			// the scan is over.
			return
		}

		raw, err := base64.StdEncoding.DecodeString(line.Data)
		if err != nil {
			logger.Debug().Str("device", line.DeviceAddress).Msg("undecodable advertisement payload")
			continue
		}

		select {
		case h.results <- proximity.Advertisement{
			DeviceAddress: line.DeviceAddress,
			RSSI:          line.RSSI,
			Raw:           raw,
		}:
		case <-h.done:
			return
		}
	}
}

// Ensure GatewayDriver implements the scan driver interface.
var _ proximity.Driver = (*GatewayDriver)(nil)
