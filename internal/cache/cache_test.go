package cache

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"arbitron/internal/config"
	"arbitron/internal/model"
)

var client *Client

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start redis container: %s", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("could not stop redis container: %s", err)
		}
	}()

	host, err := redisContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	client, err = New(ctx, config.RedisConfig{Addr: host + ":" + port.Port()})
	if err != nil {
		log.Fatalf("could not connect to redis: %s", err)
	}
	defer client.Close()

	return m.Run()
}

func TestRedisLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewRedisLedger(client)

	_, err := ledger.LoadLedger(ctx, "2000-01-01")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	at := time.Date(2024, 7, 4, 15, 30, 0, 0, time.UTC)
	require.NoError(t, ledger.SaveLedger(ctx, model.LedgerEntry{Date: "2024-07-04", CumulativeProfit: 12.5, CumulativeLoss: 0.25, UpdatedAt: at}))

	got, err := ledger.LoadLedger(ctx, "2024-07-04")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", got.Date)
	assert.Equal(t, 12.5, got.CumulativeProfit)
	assert.Equal(t, 0.25, got.CumulativeLoss)
	assert.True(t, at.Equal(got.UpdatedAt))

	ttl, err := client.rdb.TTL(ctx, ledgerKey("2024-07-04")).Result()
	require.NoError(t, err)
	// -1 means the key has no expiry
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestRedisDedup(t *testing.T) {
	ctx := context.Background()
	dedup := NewRedisDedup(client, time.Minute)

	first, err := dedup.Claim(ctx, "opp-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := dedup.Claim(ctx, "opp-1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := dedup.Claim(ctx, "opp-2")
	require.NoError(t, err)
	assert.True(t, other)
}
