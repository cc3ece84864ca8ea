package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	chmodule "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/jarmgr/internal/history"
)

func TestNew_InvalidTable(t *testing.T) {
	_, err := New(Options{Addr: "localhost:1", Table: "bad;drop"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ClickHouse table name")
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := chmodule.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		chmodule.WithUsername("default"),
		chmodule.WithPassword(""),
		chmodule.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("ClickHouse container unavailable: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	sink, err := New(Options{Addr: host + ":" + port.Port(), Table: "jar_history"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	now := time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: now, ID: "api", PID: 42}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventKill, OccurredAt: now.Add(time.Second), ID: "api", PID: 42}))

	got, err := sink.Recent(ctx, "api", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, history.EventKill, got[0].Type)
	assert.Equal(t, 42, got[1].PID)
}
