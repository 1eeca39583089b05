package packager

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/runtime"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "app")
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

func TestPackage_RoundTrip(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json":    `{"main": "./lib/entry.js"}`,
		"lib/entry.js":    `export default () => 0;`,
		"lib/unused.js":   `throw new Error("never read");`,
		"docs/README.md":  `# app`,
		"unused/index.js": `module.exports = 1;`,
	})

	a, name, err := archive.Open(root, archive.Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	defer archive.Close(a)
	assert.Equal(t, "app", name)

	r := runtime.New(a, name, runtime.Options{Stdout: io.Discard, Stderr: io.Discard})
	defer r.Close()
	out := r.Run(context.Background(), nil)
	require.NoError(t, out.Err)
	require.Equal(t, 0, out.Code)

	data, err := Package(a, Options{})
	require.NoError(t, err)
	require.NotNil(t, data)

	assert.Equal(t, []string{"lib/", "lib/entry.js", "package.json"}, entryNames(t, data))

	c, err := archive.Decode(data)
	require.NoError(t, err)
	assert.True(t, c.Has("lib/"))
	assert.False(t, c.Has("lib/unused.js"))
	entry, ok := c.Get("lib/entry.js")
	require.True(t, ok)
	assert.Equal(t, `export default () => 0;`, string(entry))

	rerun := runtime.New(c, name, runtime.Options{Stdout: io.Discard, Stderr: io.Discard})
	defer rerun.Close()
	out = rerun.Run(context.Background(), nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 0, out.Code)
}

func TestPackage_WithoutRecording(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/index.js", []byte("1"), 0o644))

	data, err := Package(archive.NewDir(fs), Options{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestPackage_Include(t *testing.T) {
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"/index.js":               "1",
		"/LICENSE":                "MIT",
		"/a/b/c.js":               "2",
		"/node_modules/x/LICENSE": "ISC",
		"/node_modules/x/x.js":    "3",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}

	tests := []struct {
		name    string
		read    []string
		include []string
		want    []string
	}{
		{
			name: "seen only",
			read: []string{"index.js", "a/b/c.js"},
			want: []string{"a/", "a/b/", "a/b/c.js", "index.js"},
		},
		{
			name:    "license files",
			read:    []string{"index.js"},
			include: []string{"**/LICENSE"},
			want:    []string{"LICENSE", "index.js", "node_modules/", "node_modules/x/", "node_modules/x/LICENSE"},
		},
		{
			name:    "overlapping",
			read:    []string{"a/b/c.js"},
			include: []string{"a/**", "*.js"},
			want:    []string{"a/", "a/b/", "a/b/c.js", "index.js"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := archive.WithRecording(archive.NewDir(fs))
			for _, name := range tt.read {
				_, ok := a.Get(name)
				require.True(t, ok, name)
			}
			data, err := Package(a, Options{Include: tt.include})
			require.NoError(t, err)
			assert.Equal(t, tt.want, entryNames(t, data))
		})
	}
}

func TestPackage_InvalidPattern(t *testing.T) {
	a := archive.WithRecording(archive.NewDir(afero.NewMemMapFs()))
	_, err := Package(a, Options{Include: []string{"[a-"}})
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.zip")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFile(path, []byte("new")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
