package backends

import (
	"context"
	"testing"

	"gallery/internal/store/filestore"
	"gallery/internal/store/memstore"
	"gallery/internal/store/sqlstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, "memory", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &memstore.MemStore{}, kv)

	kv, err = Open(ctx, "file", t.TempDir(), nil)
	require.NoError(t, err)
	assert.IsType(t, &filestore.FileStore{}, kv)

	kv, err = Open(ctx, "sqlite", ":memory:", nil)
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.SQLStore{}, kv)
	require.NoError(t, kv.Close())

	_, err = Open(ctx, "redis", "", nil)
	assert.Error(t, err)
}
