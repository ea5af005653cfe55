package jobstore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kiranshivaraju/analyzr/internal/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	s, err := jobstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseBackend(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	s, err := jobstore.NewSQLiteStore(path)
	require.NoError(t, err)
	job := sampleJob("org-1")
	require.NoError(t, s.Set(ctx, job.ID, job))
	require.NoError(t, s.Close())

	reopened, err := jobstore.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestSQLiteStore_ConcurrentWrites(t *testing.T) {
	s, err := jobstore.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	const writers, perWriter = 50, 5
	errs := make(chan error, writers*perWriter)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				job := sampleJob("org-1")
				job.ID = fmt.Sprintf("job-%d-%d", w, i)
				if err := s.Set(ctx, job.ID, job); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent set failed: %v", err)
	}

	ids, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, writers*perWriter)
}
