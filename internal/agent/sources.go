// Package agent implements the classroom-side collaborators: the location
// and network fingerprint sources, the gateway-backed radio scan driver,
// and the client that submits composed scan events to the API.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/provider/resilience"
	"github.com/presenceguard/presenceguard/internal/proximity"
)

// SourceConfig holds configuration for the positioning and network clients.
type SourceConfig struct {
	// BaseURL is the local platform daemon's API base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// LocationClient reads the current position fix from the platform
// positioning daemon.
type LocationClient struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewLocationClient creates a new positioning client.
func NewLocationClient(cfg SourceConfig) *LocationClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("location"))
	}
	return &LocationClient{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

type positionResponse struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	At             time.Time `json:"at"`
}

// CurrentFix returns the current position, or nil when no fix is available.
func (c *LocationClient) CurrentFix(ctx context.Context) (*proximity.LocationFix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/position", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	// No fix right now is an ordinary answer, not an error.
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var pos positionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &proximity.LocationFix{
		Lat:            pos.Lat,
		Lon:            pos.Lon,
		AccuracyMeters: pos.AccuracyMeters,
		At:             pos.At,
	}, nil
}

// NetworkClient reads the currently joined wireless network from the
// platform daemon.
type NetworkClient struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewNetworkClient creates a new network fingerprint client.
func NewNetworkClient(cfg SourceConfig) *NetworkClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("network"))
	}
	return &NetworkClient{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

type networkResponse struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// CurrentFingerprint returns the joined network, or nil when not connected.
func (c *NetworkClient) CurrentFingerprint(ctx context.Context) (*proximity.NetworkFingerprint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/wifi/current", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var net networkResponse
	if err := json.NewDecoder(resp.Body).Decode(&net); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if net.SSID == "" && net.BSSID == "" {
		return nil, nil
	}

	return &proximity.NetworkFingerprint{SSID: net.SSID, BSSID: net.BSSID}, nil
}

// Ensure the clients satisfy the proximity source interfaces.
var (
	_ proximity.LocationSource = (*LocationClient)(nil)
	_ proximity.NetworkSource  = (*NetworkClient)(nil)
)
