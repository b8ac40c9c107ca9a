//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grocery-etl/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	tmpDir := t.TempDir()
	dsn := filepath.Join(tmpDir, "nested", "test.db")

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: dsn,
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	info, err := os.Stat(filepath.Join(tmpDir, "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenStore_Migrates(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	stores, err := st.ListStores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stores)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "mysql",
		},
	}

	st, err := initStore(context.Background())
	assert.Error(t, err)
	assert.Nil(t, st)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestEnsureParentDir(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, ensureParentDir(":memory:"))
	require.NoError(t, ensureParentDir("grocery.db"))

	dsn := "file:" + filepath.Join(tmpDir, "a", "b.db") + "?_pragma=busy_timeout(5000)"
	require.NoError(t, ensureParentDir(dsn))
	_, err := os.Stat(filepath.Join(tmpDir, "a"))
	assert.NoError(t, err)
}
