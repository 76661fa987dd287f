// Package local_test tests the local filesystem template store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "templates")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.DirExists(t, dir)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutThenFetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "covers/q3.docx", "application/zip", bytes.NewReader([]byte("PK")))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "covers", "q3.docx"), uri)

	data, err := store.Fetch(context.Background(), "covers/q3.docx")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data)
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "missing.docx")
	assert.ErrorIs(t, err, report.ErrTemplateNotFound)

	_, err = store.Fetch(context.Background(), "../outside.docx")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, report.ErrTemplateNotFound)

	_, err = store.Put(context.Background(), "/abs.docx", "", bytes.NewReader(nil))
	assert.Error(t, err)
}
