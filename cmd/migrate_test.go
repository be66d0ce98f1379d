package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/store"
)

func TestRunMigrate(t *testing.T) {
	t.Setenv("SLOTKEEPER_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "migrate.db"))

	ctx := context.Background()
	steps := []struct {
		name string
		step func(*store.DB, context.Context) error
		want string
	}{
		{name: "fresh database", step: nil, want: "schema version: 0\n"},
		{name: "up", step: (*store.DB).Migrate, want: "schema version: 1\n"},
		{name: "up is idempotent", step: (*store.DB).Migrate, want: "schema version: 1\n"},
		{name: "down", step: (*store.DB).MigrateDown, want: "schema version: 0\n"},
	}

	for _, s := range steps {
		var out bytes.Buffer
		require.NoError(t, runMigrate(ctx, "", &out, s.step), s.name)
		assert.Equal(t, s.want, out.String(), s.name)
	}
}

func TestRunMigrateRejectsMemoryStore(t *testing.T) {
	t.Setenv("SLOTKEEPER_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", "memory")

	var out bytes.Buffer
	err := runMigrate(context.Background(), "", &out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory store")
}
