package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/ddialog/pkg/adapters/file"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.ProgressStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunProgressStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_EscapesConversationIDs(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()
	id := "a:1Xyz|livechat/7"

	require.NoError(t, store.Save(ctx, id, domain.NewProgress(id)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files should be left behind")
	assert.NotContains(t, entries[0].Name(), "/")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestFileStore_ListMissingDirectory(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "never-created"))

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_RejectsEmptyID(t *testing.T) {
	store := file.New(t.TempDir())
	err := store.Save(context.Background(), "", domain.NewProgress(""))
	assert.Error(t, err)
}
