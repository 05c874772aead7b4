package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/civmanager/store"
	"github.com/kasuganosora/civmanager/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
jobs:
  - name: Farmer
  - name: Scholar
    description: Reads.
    min_intelligence: 13
`)
	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Scholar", entries[1].Name)
	assert.Equal(t, 13, entries[1].MinIntelligence)
	assert.Nil(t, entries[0].Job().Description)
	require.NotNil(t, entries[1].Job().Description)
	assert.Equal(t, "Reads.", *entries[1].Job().Description)
}

func TestLoad_ShippedSeed(t *testing.T) {
	entries, err := Load(filepath.Join("..", "config", "jobs.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "jobs:\n  - name: A\n  - name: A\n"))
	assert.Error(t, err)
	_, err = Load(writeFile(t, "jobs:\n  - description: nameless\n"))
	assert.Error(t, err)
	_, err = Load(writeFile(t, "jobs:\n  - name: A\n    min_strength: -1\n"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeed_Idempotent(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	require.NoError(t, Seed(ctx, st, Defaults(), zap.NewNop()))
	require.NoError(t, Seed(ctx, st, Defaults(), zap.NewNop()))

	jobs, err := st.Jobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, len(Defaults()))
	// Alphabetical.
	assert.Equal(t, "Builder", jobs[0].Name)
}

func TestSeed_UpdatesThresholds(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	require.NoError(t, Seed(ctx, st, []Entry{{Name: "Scholar", MinIntelligence: 15}}, zap.NewNop()))
	require.NoError(t, Seed(ctx, st, []Entry{{Name: "Scholar", MinIntelligence: 11}}, zap.NewNop()))

	jobs, err := st.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 11, jobs[0].MinIntelligence)
}
