package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetsEmbedded(t *testing.T) {
	for _, name := range []string{"index.html", "style.css", "app.js"} {
		b, err := fs.ReadFile(FS, name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, b, name)
	}

	index, err := fs.ReadFile(FS, "index.html")
	require.NoError(t, err)
	assert.Contains(t, string(index), "app.js")
}
