package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/store"
)

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger   *zap.Logger
	testStore    *store.Store
	testRedisURL string
	testConfig   *config.Config
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("hippo_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startNeo4j starts a Neo4j testcontainer, returns bolt URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// resetTables clears pipeline state between tests.
func resetTables(t *testing.T) {
	t.Helper()
	_, err := testStore.Pool().Exec(context.Background(), `
		TRUNCATE memory_items, episodes, consolidated_memories, associations,
		         semantic_nodes, watermarks, run_locks, quarantine,
		         dead_letters, run_results`)
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}

// seedItems inserts pending items with the given saliences, spaced a second
// apart so ordering is deterministic.
func seedItems(t *testing.T, category string, saliences []float64) []model.MemoryItem {
	t.Helper()
	now := time.Now().Add(-time.Duration(len(saliences)) * time.Second)
	items := make([]model.MemoryItem, len(saliences))
	for i, s := range saliences {
		items[i] = model.MemoryItem{
			ID:         fmt.Sprintf("%s-item-%02d", category, i),
			ContentRef: fmt.Sprintf("note about %s number %d", category, i),
			Category:   category,
			Salience:   s,
			Sentiment:  0.7,
			Importance: 0.8,
			Status:     model.ItemPending,
			ArrivalSeq: int64(i),
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
		}
	}
	if err := testStore.UpsertItems(context.Background(), testStore.Pool(), items); err != nil {
		t.Fatalf("seed items: %v", err)
	}
	return items
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	err := testStore.Pool().QueryRow(context.Background(),
		"SELECT count(*) FROM "+table).Scan(&n)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
