package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/provider/resilience"
	"github.com/presenceguard/presenceguard/internal/proximity"
)

// APIConfig holds configuration for the attendance API client.
type APIConfig struct {
	// BaseURL is the attendance API base URL (required).
	BaseURL string

	// Token is the student's bearer token (required).
	Token string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// APIClient submits composed scan events to the attendance API.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewAPIClient creates a new attendance API client.
func NewAPIClient(cfg APIConfig) *APIClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("attendance-api"))
	}
	return &APIClient{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// GeoPoint is a latitude/longitude pair on the wire.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WireNetwork is a network fingerprint on the wire.
type WireNetwork struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// BeaconReading is one decoded beacon observation on the wire.
type BeaconReading struct {
	DeviceAddress string  `json:"deviceAddress"`
	Version       uint8   `json:"version"`
	ClassID       uint16  `json:"classId"`
	SessionToken  uint32  `json:"sessionToken"`
	FacultyID     uint16  `json:"facultyId"`
	Flags         uint8   `json:"flags"`
	SmoothedRSSI  float64 `json:"smoothedRssi"`
}

// ScanSubmission is the request body for a scan submission.
type ScanSubmission struct {
	SessionID         string          `json:"sessionId"`
	SessionToken      uint32          `json:"sessionToken"`
	DeviceFingerprint string          `json:"deviceFingerprint"`
	Timestamp         time.Time       `json:"timestamp"`
	Location          *GeoPoint       `json:"location,omitempty"`
	Network           *WireNetwork    `json:"network,omitempty"`
	Beacons           []BeaconReading `json:"beacons,omitempty"`
}

// ScanOutcome is what the API returned for a submission.
type ScanOutcome struct {
	Accepted  bool   `json:"accepted"`
	Score     int    `json:"score"`
	Reason    string `json:"reason,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// SubmitScan posts a scan submission and returns the decision.
func (c *APIClient) SubmitScan(ctx context.Context, sub *ScanSubmission) (*ScanOutcome, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshaling submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/attendance/scan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var outcome ScanOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Info().
		Str("session_id", sub.SessionID).
		Bool("accepted", outcome.Accepted).
		Int("score", outcome.Score).
		Msg("scan submitted")
	return &outcome, nil
}

// BuildSubmission folds a ring-buffer snapshot into one scan submission.
// The freshest location and network fingerprint win; beacon observations
// are deduplicated per transmitter keeping the strongest smoothed reading.
func BuildSubmission(sessionID string, sessionToken uint32, fingerprint string, at time.Time, samples []proximity.CycleSample) *ScanSubmission {
	sub := &ScanSubmission{
		SessionID:         sessionID,
		SessionToken:      sessionToken,
		DeviceFingerprint: fingerprint,
		Timestamp:         at,
	}

	best := make(map[string]BeaconReading)

	// Snapshot order is oldest first; later samples overwrite.
	for _, sample := range samples {
		if sample.Location != nil {
			sub.Location = &GeoPoint{Lat: sample.Location.Lat, Lon: sample.Location.Lon}
		}
		if sample.Network != nil {
			sub.Network = &WireNetwork{SSID: sample.Network.SSID, BSSID: sample.Network.BSSID}
		}
		for _, obs := range sample.Observations {
			reading := BeaconReading{
				DeviceAddress: obs.DeviceAddress,
				Version:       obs.Record.Version,
				ClassID:       obs.Record.ClassID,
				SessionToken:  obs.Record.SessionToken,
				FacultyID:     obs.Record.FacultyID,
				Flags:         obs.Record.Flags,
				SmoothedRSSI:  obs.SmoothedRSSI,
			}
			if prev, ok := best[obs.DeviceAddress]; !ok || reading.SmoothedRSSI > prev.SmoothedRSSI {
				best[obs.DeviceAddress] = reading
			}
		}
	}

	for _, reading := range best {
		sub.Beacons = append(sub.Beacons, reading)
	}
	return sub
}
