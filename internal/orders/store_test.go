package orders

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/solswap/execution-engine/internal/config"
	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/pkg/database"
	"github.com/solswap/execution-engine/pkg/observability"
)

var (
	testSOL  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testUSDC = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// newTestStore starts a disposable Postgres container and returns a Store
// backed by it, torn down automatically at the end of the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := "postgres://postgres:postgres@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	logger := observability.NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "json"})

	db, err := database.NewPostgresDB(config.DatabaseConfig{
		URL: dsn, MaxOpenConns: 5, MaxIdleConns: 2, ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(ctx, db)
	require.NoError(t, err)
	return store
}

func testDraft() Draft {
	return Draft{
		Type:     domain.OrderTypeMarket,
		TokenIn:  testSOL,
		TokenOut: testUSDC,
		AmountIn: decimal.NewFromFloat(2.5),
		Slippage: decimal.NewFromFloat(0.01),
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	created, err := store.Create(ctx, id, testDraft())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, created.Status)

	found, err := store.Find(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, found.ID)
	require.True(t, found.TokenIn.Equals(testSOL))
	require.True(t, found.AmountIn.Equal(decimal.NewFromFloat(2.5)))
}

func TestStore_FindMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Find(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestStore_TransitionWalksLegalEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	_, err := store.Create(ctx, id, testDraft())
	require.NoError(t, err)

	routing, err := store.Transition(ctx, id, domain.StatusRouting, nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRouting, routing.Status)

	building, err := store.Transition(ctx, id, domain.StatusBuilding, func(o *domain.Order) {
		o.Venue = "raydium"
	})
	require.NoError(t, err)
	require.Equal(t, "raydium", building.Venue)
}

func TestStore_TransitionRejectsIllegalEdge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	_, err := store.Create(ctx, id, testDraft())
	require.NoError(t, err)

	// Pending -> Submitted skips Routing/Building and must be rejected.
	_, err = store.Transition(ctx, id, domain.StatusSubmitted, nil)
	require.ErrorIs(t, err, engineerr.ErrIllegalTransition)
}

func TestStore_TransitionRejectsMutationOfTerminalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	_, err := store.Create(ctx, id, testDraft())
	require.NoError(t, err)

	_, err = store.MarkFailed(ctx, id, "boom")
	require.NoError(t, err)

	_, err = store.Transition(ctx, id, domain.StatusRouting, nil)
	require.ErrorIs(t, err, engineerr.ErrIllegalTransition)
}

func TestStore_RecordExecutionReachesConfirmed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	_, err := store.Create(ctx, id, testDraft())
	require.NoError(t, err)

	_, err = store.Transition(ctx, id, domain.StatusRouting, nil)
	require.NoError(t, err)
	_, err = store.Transition(ctx, id, domain.StatusBuilding, nil)
	require.NoError(t, err)
	_, err = store.Transition(ctx, id, domain.StatusSubmitted, nil)
	require.NoError(t, err)

	confirmed, err := store.RecordExecution(ctx, id, "raydium", "tx-123", decimal.NewFromFloat(100.5), decimal.NewFromFloat(250))
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, confirmed.Status)
	require.Equal(t, "raydium", confirmed.Venue)
	require.Equal(t, "tx-123", confirmed.TxRef)
	require.NotNil(t, confirmed.CompletedAt)
}

func TestStore_IncrementRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	_, err := store.Create(ctx, id, testDraft())
	require.NoError(t, err)

	updated, err := store.IncrementRetry(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, updated.RetryCount)

	updated, err = store.IncrementRetry(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, updated.RetryCount)
}

func TestStore_ListAndCountFilterByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pendingID := uuid.NewString()
	_, err := store.Create(ctx, pendingID, testDraft())
	require.NoError(t, err)

	failedID := uuid.NewString()
	_, err = store.Create(ctx, failedID, testDraft())
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, failedID, "no route")
	require.NoError(t, err)

	failed, err := store.List(ctx, Filter{Status: domain.StatusFailed}, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, failedID, failed[0].ID)

	count, err := store.Count(ctx, Filter{Status: domain.StatusPending})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
