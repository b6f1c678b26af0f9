package sources

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/db"
)

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry(openTestStore(t))
	ctx := context.Background()

	ds, err := r.Add(ctx, "http://meter.local/kwh", "main meter")
	require.NoError(t, err)
	assert.NotZero(t, ds.ID)

	got, err := r.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, ds, got)
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := NewRegistry(openTestStore(t))
	ctx := context.Background()

	_, err := r.Add(ctx, "http://meter.local/kwh", "a")
	require.NoError(t, err)

	_, err = r.Add(ctx, "http://meter.local/kwh", "b")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateSource)
}

func TestRegistry_AddInvalidEndpoint(t *testing.T) {
	r := NewRegistry(openTestStore(t))

	_, err := r.Add(context.Background(), "", "empty")
	assert.Error(t, err)
}

func TestRegistry_Update(t *testing.T) {
	r := NewRegistry(openTestStore(t))
	ctx := context.Background()

	a, err := r.Add(ctx, "http://meter.local/a", "a")
	require.NoError(t, err)
	b, err := r.Add(ctx, "http://meter.local/b", "b")
	require.NoError(t, err)

	tests := []struct {
		name     string
		id       int64
		endpoint string
		wantErr  error
	}{
		{"rename label only", a.ID, "http://meter.local/a", nil},
		{"move to free endpoint", a.ID, "http://meter.local/c", nil},
		{"collide with other source", a.ID, b.Endpoint, apperrors.ErrDuplicateSource},
		{"missing source", 9999, "http://meter.local/z", apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Update(ctx, tt.id, tt.endpoint, "updated")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://meter.local/c", got.Endpoint)
	assert.Equal(t, "updated", got.Label)
}

func TestRegistry_DeleteAndList(t *testing.T) {
	r := NewRegistry(openTestStore(t))
	ctx := context.Background()

	a, err := r.Add(ctx, "http://meter.local/a", "zeta")
	require.NoError(t, err)
	_, err = r.Add(ctx, "http://meter.local/b", "alpha")
	require.NoError(t, err)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Label)

	require.NoError(t, r.Delete(ctx, a.ID))
	require.NoError(t, r.Delete(ctx, a.ID), "deleting twice is not an error")

	_, err = r.Get(ctx, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	list, err = r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func openTestStore(t *testing.T) *db.Manager {
	t.Helper()

	manager := db.NewManager()
	require.NoError(t, manager.Open(context.Background(), filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}
