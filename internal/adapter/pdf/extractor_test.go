package pdf_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenkindex/internal/adapter/pdf"
)

func TestExtractor_ExtractText(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	e := pdf.NewExtractor()

	t.Run("Plain text", func(t *testing.T) {
		path := filepath.Join(dir, "filing.txt")
		require.NoError(t, os.WriteFile(path, []byte("ITEM 1. BUSINESS\n\nWe sell widgets."), 0o600))

		text, err := e.ExtractText(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "ITEM 1. BUSINESS\n\nWe sell widgets.", text)
	})

	t.Run("Corrupt PDF", func(t *testing.T) {
		path := filepath.Join(dir, "broken.PDF")
		require.NoError(t, os.WriteFile(path, []byte("not really a pdf"), 0o600))

		_, err := e.ExtractText(ctx, path)
		assert.Error(t, err)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := e.ExtractText(ctx, filepath.Join(dir, "nope.txt"))
		assert.Error(t, err)
	})

	t.Run("Unsupported extension", func(t *testing.T) {
		_, err := e.ExtractText(ctx, filepath.Join(dir, "filing.docx"))
		assert.ErrorIs(t, err, pdf.ErrUnsupportedFormat)
	})
}
