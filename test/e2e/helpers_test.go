//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pnslabs/pns-indexer/internal/auth"
	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/config"
	registryDomain "github.com/pnslabs/pns-indexer/internal/registry/domain"
	registryTransport "github.com/pnslabs/pns-indexer/internal/registry/transport"
	"github.com/pnslabs/pns-indexer/internal/storage"
	"github.com/pnslabs/pns-indexer/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testAPIKey is the operator key every e2e test authenticates with.
const testAPIKey = "pns_key_e2e_test_key"

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("pns"),
		postgres.WithUsername("pns"),
		postgres.WithPassword("pns"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the read API in-process over the containered Postgres.
// Chain scan loops are not started; tests drive the store directly and
// observe the results through the HTTP surface.
func startServerE(connString string) (*httptest.Server, storage.Store, error) {
	cfg := config.StorageConfig{
		Type:     "postgres",
		Postgres: config.PostgresConfig{URL: connString},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	svc := registryDomain.NewService(store, store, store)
	svc.WatchScanner(chains.ChainPolygon, idleReporter{})
	handler := registryTransport.NewHandler(svc)

	keyset := auth.NewKeyset([]string{auth.HashAPIKey(testAPIKey)})

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		handler.RegisterReadRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(keyset, writeTestError))
			handler.RegisterAdminRoutes(r)
		})
	})

	return httptest.NewServer(router), store, nil
}

func writeTestError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}

// newClient creates an API client for the test server
func newClient(apiKey string) *client.Client {
	return client.New(testCtx.TestServer.URL, apiKey)
}

// applyBatch applies one scan window without planning jobs and fails the
// test on error
func applyBatch(t *testing.T, batch *storage.Batch) *storage.BatchResult {
	t.Helper()
	result, err := testCtx.Store.ApplyBatch(context.Background(), batch, nil)
	require.NoError(t, err, "Failed to apply batch")
	return result
}

// registrationBatch builds a one-event window registering a domain on the
// authoritative chain.
func registrationBatch(nameHash, label, owner string, block int64) *storage.Batch {
	expiration := time.Now().Add(365 * 24 * time.Hour).Unix()
	return &storage.Batch{
		Chain:     chains.ChainPolygon,
		FromBlock: block,
		ToBlock:   block,
		Domains: []storage.DomainChange{{
			Ref:          storage.EventRef{TxHash: fmt.Sprintf("0xtx%d", block), LogIndex: 0, Block: block},
			NameHash:     nameHash,
			Label:        strPtr(label),
			OwnerPrimary: strPtr(owner),
			Expiration:   &expiration,
			PrimaryBlock: &block,
			PrimaryTx:    strPtr(fmt.Sprintf("0xtx%d", block)),
		}},
	}
}

// recordBatch builds a one-event window writing a record on the
// authoritative chain. Version zero asks the store to assign the next one.
func recordBatch(nameHash, keyHash, key string, value []byte, block int64) *storage.Batch {
	return &storage.Batch{
		Chain:     chains.ChainPolygon,
		FromBlock: block,
		ToBlock:   block,
		Records: []storage.RecordChange{{
			Ref:         storage.EventRef{TxHash: fmt.Sprintf("0xtx%d", block), LogIndex: 0, Block: block},
			NameHash:    nameHash,
			KeyHash:     keyHash,
			Key:         key,
			RecordType:  chains.RecordTypeCustom,
			Value:       value,
			SourceChain: chains.ChainPolygon,
		}},
	}
}

func strPtr(s string) *string { return &s }

// idleReporter stands in for a scan loop that never runs. The e2e suite
// drives the store directly, so the health surface sees a permanently idle
// chain with real checkpoints underneath it.
type idleReporter struct{}

func (idleReporter) Status() (string, time.Time, error) {
	return "idle", time.Now(), nil
}

// nameHashFor builds a distinct, well-formed name hash per test seed so
// tests sharing the database never collide.
func nameHashFor(seed int) string {
	return fmt.Sprintf("0x%064x", seed)
}

func keyHashFor(seed int) string {
	return fmt.Sprintf("0x%064x", 0xcafe0000+seed)
}

func ownerFor(seed int) string {
	return fmt.Sprintf("0x%040x", seed)
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
