package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_GetDomain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/domains/alice" {
			t.Errorf("Expected path /api/v1/domains/alice, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET method, got %s", r.Method)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"nameHash":     "0xabc",
			"label":        "alice",
			"ownerPrimary": "0xowner",
			"wrapState":    "none",
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	d, err := client.GetDomain(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetDomain() error = %v", err)
	}

	if d.Label != "alice" {
		t.Errorf("GetDomain().Label = %s, want alice", d.Label)
	}
	if d.OwnerPrimary != "0xowner" {
		t.Errorf("GetDomain().OwnerPrimary = %s, want 0xowner", d.OwnerPrimary)
	}
}

func TestClient_GetDomain_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "Domain not found"},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.GetDomain(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetDomain() expected error, got nil")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("GetDomain() error type = %T, want *APIError", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("GetDomain() error code = %s, want NOT_FOUND", apiErr.Code)
	}
}

func TestClient_ListDomainsByOwner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("owner"); got != "0xowner" {
			t.Errorf("Expected owner query 0xowner, got %s", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("Expected limit query 5, got %s", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"nameHash": "0xabc", "label": "alice"}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	ds, err := client.ListDomainsByOwner(context.Background(), "0xowner", 5)
	if err != nil {
		t.Fatalf("ListDomainsByOwner() error = %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("ListDomainsByOwner() returned %d domains, want 1", len(ds))
	}
	if ds[0].Label != "alice" {
		t.Errorf("ListDomainsByOwner()[0].Label = %s, want alice", ds[0].Label)
	}
}

func TestClient_ListRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/domains/alice/records" {
			t.Errorf("Expected path /api/v1/domains/alice/records, got %s", r.URL.Path)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"keyHash": "0xk1", "key": "email", "version": 3},
				{"keyHash": "0xk2", "tombstone": true, "version": 5},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	rs, err := client.ListRecords(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("ListRecords() returned %d records, want 2", len(rs))
	}
	if !rs[1].Tombstone {
		t.Error("ListRecords()[1].Tombstone = false, want true")
	}
}

func TestClient_GetStatus_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"healthy": false,
			"chains": []map[string]any{
				{"chain": "polygon", "state": "faulted", "checkpoint": 100},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	status, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Healthy {
		t.Error("GetStatus().Healthy = true, want false")
	}
	if len(status.Chains) != 1 || status.Chains[0].State != "faulted" {
		t.Errorf("GetStatus().Chains = %+v, want one faulted polygon entry", status.Chains)
	}
}

func TestClient_ListJobs_SendsAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "pns_key_test" {
			t.Errorf("Expected X-API-Key pns_key_test, got %s", got)
		}
		if got := r.URL.Query().Get("status"); got != "failed" {
			t.Errorf("Expected status query failed, got %s", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "j1", "status": "failed"}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "pns_key_test")
	jobs, err := client.ListJobs(context.Background(), JobListOptions{Status: "failed"})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("ListJobs() = %+v, want one job j1", jobs)
	}
}

func TestClient_RetryJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/j1/retry" {
			t.Errorf("Expected path /api/v1/jobs/j1/retry, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}

		json.NewEncoder(w).Encode(map[string]any{"id": "j1", "status": "pending"})
	}))
	defer server.Close()

	client := New(server.URL, "pns_key_test")
	job, err := client.RetryJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("RetryJob() error = %v", err)
	}
	if job.Status != "pending" {
		t.Errorf("RetryJob().Status = %s, want pending", job.Status)
	}
}
