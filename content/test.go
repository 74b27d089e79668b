package content

import (
	"context"
	"testing"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// RunInTest creates cache and runs its workers for unit tests.
func RunInTest(t *testing.T, config Config) *Cache {
	c, err := New(config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	group := parallel.NewGroup(ctx)
	group.Spawn("cache", parallel.Continue, c.Run)

	t.Cleanup(func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}
	})

	return c
}
