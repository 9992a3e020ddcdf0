package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skybridge-io/mavfabric/internal/errs"
)

const ingestTimeout = 10 * time.Second

// ingestPayload is the REST sync loop's wire body (§6): a batch plus a
// timestamp and source tag, matching the central server's ingest
// endpoint shape.
type ingestPayload struct {
	Records   []Record `json:"records"`
	Timestamp float64  `json:"timestamp"`
	Source    string   `json:"source"`
}

// ingestClient posts batches to the central REST endpoint. It carries no
// retry logic of its own: retry accounting lives in buffer, one level up,
// because retries there are per-record, not per-HTTP-call.
type ingestClient struct {
	baseURL   string
	apiKey    string
	vehicleID string
	client    *http.Client
}

func newIngestClient(baseURL, apiKey, vehicleID string) *ingestClient {
	return &ingestClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		vehicleID: vehicleID,
		client:    &http.Client{Timeout: ingestTimeout},
	}
}

// post sends one batch and returns nil only on a 2xx response.
func (c *ingestClient) post(ctx context.Context, records []Record) error {
	body, err := json.Marshal(ingestPayload{
		Records:   records,
		Timestamp: float64(time.Now().Unix()),
		Source:    c.vehicleID,
	})
	if err != nil {
		return fmt.Errorf("marshal ingest payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest-telemetry", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return &errs.UpstreamFailureError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errs.UpstreamFailureError{StatusCode: resp.StatusCode}
	}
	return nil
}
