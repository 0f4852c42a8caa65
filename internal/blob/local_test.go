package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_Save(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	provider, err := NewLocalProvider(dir)
	require.NoError(t, err)

	err = provider.Save(context.Background(), "pages/B08N5WRWNW/20250601T120000Z.html", []byte("<html>listing</html>"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "pages", "B08N5WRWNW", "20250601T120000Z.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>listing</html>", string(data))

	assert.NoError(t, provider.Close())
}

func TestNewLocalProvider_RequiresDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocalProvider("")
	require.Error(t, err)
}
