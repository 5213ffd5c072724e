//go:build integration

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/esdump/pkg/pagination"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) *redis.Client {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start Redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		client.Close()
		_ = container.Terminate(context.Background())
	})
	return client
}

func TestRedisTracker_Integration_ConcurrentSlices(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	const slices, pages = 8, 25
	tracker := NewRedisTracker(client, uuid.NewString(), time.Minute)
	require.NoError(t, tracker.Start(ctx, slices))

	done := make(chan struct{})
	for id := 0; id < slices; id++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for p := 0; p < pages; p++ {
				tracker.PageEmitted(ctx, id, 10)
			}
		}(id)
	}
	for i := 0; i < slices; i++ {
		<-done
	}

	snapshot, err := tracker.Snapshot(ctx, slices)
	require.NoError(t, err)
	for _, p := range snapshot {
		assert.Equal(t, int64(pages*10), p.Documents, "slice %d", p.SliceID)
		assert.Equal(t, int64(pages), p.Pages)
		assert.Equal(t, pagination.StateEmitting.String(), p.State)
	}
}
