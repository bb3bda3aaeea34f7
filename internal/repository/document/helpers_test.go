package document

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskapi/internal/docstore"
	"taskapi/internal/docstore/s3store"
	"taskapi/internal/docstore/s3store/s3storetest"
	"taskapi/internal/docstore/sqlite"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type backend struct {
	name string
	open func(t *testing.T, now func() time.Time) docstore.Gateway
}

var backends = []backend{
	{
		name: "sqlite",
		open: func(t *testing.T, now func() time.Time) docstore.Gateway {
			store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "docs.db"), sqlite.WithClock(now))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	},
	{
		name: "s3",
		open: func(t *testing.T, now func() time.Time) docstore.Gateway {
			store, err := s3store.New(s3storetest.NewClient(), "bucket", "taskapi", s3store.WithClock(now))
			require.NoError(t, err)
			return store
		},
	},
}

// eachBackend runs fn once per document store backend, each on a clock that
// advances one second per write.
func eachBackend(t *testing.T, fn func(t *testing.T, store docstore.Gateway)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			clock := &tickClock{t: epoch}
			fn(t, b.open(t, clock.Now))
		})
	}
}
