package meta

import (
	"context"
	"testing"

	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnset(t *testing.T) {
	store := NewStore(testutil.NewDB(t))

	value, ok, err := store.Get(context.Background(), 1, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSetReplaces(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	store := NewStore(db)

	require.NoError(t, store.Set(ctx, 1, "k", "first"))
	require.NoError(t, store.Set(ctx, 1, "k", "second"))
	require.NoError(t, store.Set(ctx, 2, "k", "other item"))

	value, ok, err := store.Get(ctx, 1, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", value)

	var count int64
	db.Model(&models.ItemMeta{}).Where("item_id = ? AND meta_key = ?", 1, "k").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDuplicateRowsKeepOldestForGet(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	store := NewStore(db)

	// rows written by other tools may repeat a key
	require.NoError(t, db.Create(&models.ItemMeta{ItemID: 1, MetaKey: "k", MetaValue: "a"}).Error)
	require.NoError(t, db.Create(&models.ItemMeta{ItemID: 1, MetaKey: "k", MetaValue: "b"}).Error)

	value, _, err := store.Get(ctx, 1, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", value)

	all, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "a"}, all)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testutil.NewDB(t))

	require.NoError(t, store.Set(ctx, 1, "k", "v"))
	require.NoError(t, store.Set(ctx, 1, "other", "v"))
	require.NoError(t, store.Delete(ctx, 1, "k"))

	_, ok, err := store.Get(ctx, 1, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.DeleteItem(ctx, 1))
	all, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, all)
}
