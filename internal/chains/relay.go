package chains

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RelaySubmitter submits instructions to a chain's relayer endpoint: the
// external service that holds the signing authority and turns instruction
// payloads into transactions. Both chains use the same wire shape.
type RelaySubmitter struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRelaySubmitter creates a submitter for one relayer endpoint.
func NewRelaySubmitter(endpoint, apiKey string, timeout time.Duration) *RelaySubmitter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelaySubmitter{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type relayResponse struct {
	Tx    string `json:"tx"`
	Error string `json:"error,omitempty"`
}

// Submit posts one instruction. The relayer answers 409 when the target's
// stored version already covers the instruction; that maps to ErrSuperseded
// so the dispatcher can close the job as a no-op.
func (r *RelaySubmitter) Submit(ctx context.Context, instr Instruction) (string, error) {
	body, err := json.Marshal(instr)
	if err != nil {
		return "", fmt.Errorf("encoding instruction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/submit", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting instruction: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading relayer response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		var rr relayResponse
		if err := json.Unmarshal(data, &rr); err != nil {
			return "", fmt.Errorf("decoding relayer response: %w", err)
		}
		return rr.Tx, nil
	case http.StatusConflict:
		return "", fmt.Errorf("relayer: %s: %w", string(data), ErrSuperseded)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("relayer: %w", ErrRateLimited)
	default:
		return "", fmt.Errorf("relayer returned %d: %s", resp.StatusCode, string(data))
	}
}
