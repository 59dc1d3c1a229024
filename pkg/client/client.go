// Package client provides a Go client for the pns-indexer API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a pns-indexer API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new pns-indexer client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Domain is one registered name as the API returns it
type Domain struct {
	NameHash     string `json:"nameHash"`
	Label        string `json:"label,omitempty"`
	OwnerPrimary string `json:"ownerPrimary"`
	OwnerMirror  string `json:"ownerMirror,omitempty"`
	Expiration   int64  `json:"expiration"`
	Expired      bool   `json:"expired"`
	Resolver     string `json:"resolver,omitempty"`
	WrapState    string `json:"wrapState"`
	NFTMint      string `json:"nftMint,omitempty"`
	PrimaryBlock int64  `json:"primaryBlock,omitempty"`
	PrimaryTx    string `json:"primaryTx,omitempty"`
	MirrorSlot   int64  `json:"mirrorSlot,omitempty"`
	LastSyncedAt string `json:"lastSyncedAt,omitempty"`
	UpdatedAt    string `json:"updatedAt"`
}

// Record is one record attached to a domain
type Record struct {
	KeyHash         string `json:"keyHash"`
	Key             string `json:"key,omitempty"`
	RecordType      string `json:"recordType"`
	Value           []byte `json:"value,omitempty"`
	SourceChain     string `json:"sourceChain"`
	Version         int64  `json:"version"`
	MirroredVersion int64  `json:"mirroredVersion"`
	Tombstone       bool   `json:"tombstone,omitempty"`
	UpdatedAt       string `json:"updatedAt"`
}

// ChainStatus is one chain's scan progress
type ChainStatus struct {
	Chain         string `json:"chain"`
	Checkpoint    int64  `json:"checkpoint"`
	HasCheckpoint bool   `json:"hasCheckpoint"`
	State         string `json:"state"`
	LastTick      string `json:"lastTick,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	EventsApplied int64  `json:"eventsApplied"`
}

// Status is the indexer health summary
type Status struct {
	Healthy bool             `json:"healthy"`
	Chains  []ChainStatus    `json:"chains"`
	Jobs    map[string]int64 `json:"jobs"`
}

// Job is one cross-chain sync job
type Job struct {
	ID            string `json:"id"`
	JobType       string `json:"jobType"`
	TargetChain   string `json:"targetChain"`
	NameHash      string `json:"nameHash"`
	KeyHash       string `json:"keyHash,omitempty"`
	Version       int64  `json:"version"`
	Status        string `json:"status"`
	RetryCount    int    `json:"retryCount"`
	LastError     string `json:"lastError,omitempty"`
	NextAttemptAt string `json:"nextAttemptAt,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// JobListOptions filters ListJobs
type JobListOptions struct {
	Status      string
	TargetChain string
	JobType     string
	NameHash    string
	Limit       int
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// GetDomain looks up a domain by label or 0x-prefixed name hash
func (c *Client) GetDomain(ctx context.Context, nameOrHash string) (*Domain, error) {
	var resp Domain
	if err := c.get(ctx, "/api/v1/domains/"+url.PathEscape(nameOrHash), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDomainsByOwner lists domains owned by an address on either chain
func (c *Client) ListDomainsByOwner(ctx context.Context, owner string, limit int) ([]Domain, error) {
	q := url.Values{"owner": {owner}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Data []Domain `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/domains?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListRecords lists a domain's records, tombstones included
func (c *Client) ListRecords(ctx context.Context, nameOrHash string) ([]Record, error) {
	var resp struct {
		Data []Record `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/domains/"+url.PathEscape(nameOrHash)+"/records", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetStatus reads the indexer health summary. The summary is returned even
// when the server answers 503 for an unhealthy indexer.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.parseError(resp)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &status, nil
}

// ListJobs lists sync jobs (operator surface, requires an API key)
func (c *Client) ListJobs(ctx context.Context, opts JobListOptions) ([]Job, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.TargetChain != "" {
		q.Set("target", opts.TargetChain)
	}
	if opts.JobType != "" {
		q.Set("type", opts.JobType)
	}
	if opts.NameHash != "" {
		q.Set("nameHash", opts.NameHash)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/api/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Data []Job `json:"data"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// RetryJob moves a failed job back to pending (operator surface)
func (c *Client) RetryJob(ctx context.Context, id string) (*Job, error) {
	var resp Job
	if err := c.post(ctx, "/api/v1/jobs/"+url.PathEscape(id)+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var wrapped struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Code != "" {
		return &wrapped.Error
	}

	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}
