package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"sentinelflow/internal/models"
)

const reportAttempts = 3

// Ack is the server's reply to an accepted sample.
type Ack struct {
	Status    string  `json:"status"`
	AgentID   string  `json:"agent_id"`
	RiskScore float64 `json:"risk_score"`
	LastAlert *string `json:"last_alert"`
}

// errRejected marks a response that retrying will not fix.
var errRejected = errors.New("sample rejected")

// Reporter posts samples to the server's ingest endpoint.
type Reporter struct {
	URL     string
	HTTP    *http.Client
	backoff time.Duration
}

func NewReporter(url string, timeout time.Duration) *Reporter {
	return &Reporter{
		URL:     url,
		HTTP:    &http.Client{Timeout: timeout},
		backoff: 500 * time.Millisecond,
	}
}

// Report delivers s, retrying transport failures and 5xx responses.
func (r *Reporter) Report(ctx context.Context, s models.Sample) (Ack, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Ack{}, err
	}
	var lastErr error
	for attempt := 1; attempt <= reportAttempts; attempt++ {
		ack, err := r.post(ctx, body)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if errors.Is(err, errRejected) || attempt == reportAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Ack{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return Ack{}, lastErr
}

func (r *Reporter) post(ctx context.Context, body []byte) (Ack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := r.HTTP.Do(req)
	if err != nil {
		return Ack{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		err := fmt.Errorf("ingest status %d: %s", res.StatusCode, bytes.TrimSpace(msg))
		if res.StatusCode < 500 {
			return Ack{}, fmt.Errorf("%w: %v", errRejected, err)
		}
		return Ack{}, err
	}
	var ack Ack
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return Ack{}, fmt.Errorf("decode ingest response: %w", err)
	}
	return ack, nil
}
