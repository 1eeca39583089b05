package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/modrun/errors"
)

func memDir(t *testing.T, files map[string]string) *Dir {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, "/"+name, []byte(content), 0o644))
	}
	return NewDir(fs)
}

func TestDir_HasGet(t *testing.T) {
	d := memDir(t, map[string]string{
		"package.json":                   `{}`,
		"src/main.js":                    "export default 1",
		"node_modules/left-pad/index.js": "module.exports = 1",
	})

	tests := []struct {
		name string
		has  bool
	}{
		{"package.json", true},
		{"src/main.js", true},
		{"src/", true},
		{"src", false},
		{"node_modules/left-pad/", true},
		{"node_modules/right-pad/", false},
		{"src/main.js/", false},
		{"missing.js", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.has, d.Has(tt.name))
		})
	}

	data, ok := d.Get("src/main.js")
	require.True(t, ok)
	assert.Equal(t, "export default 1", string(data))

	_, ok = d.Get("src/")
	assert.False(t, ok)
	_, ok = d.Get("nope.js")
	assert.False(t, ok)

	assert.Equal(t, []string{"node_modules/left-pad/index.js", "package.json", "src/main.js"}, d.Names())
}

func TestContainer_RoundTrip(t *testing.T) {
	data, err := Encode([]Entry{
		{Name: "lib/"},
		{Name: "lib/a.js", Data: []byte("a")},
		{Name: "deep/nested/b.json", Data: []byte(`{"b":1}`)},
	})
	require.NoError(t, err)

	c, err := Decode(data)
	require.NoError(t, err)

	assert.True(t, c.Has("lib/"))
	assert.True(t, c.Has("deep/"), "directory derived from entry prefix")
	assert.True(t, c.Has("deep/nested/"))
	assert.True(t, c.Has("lib/a.js"))
	assert.False(t, c.Has("lib/a.js/"))
	assert.False(t, c.Has("other/"))

	got, ok := c.Get("deep/nested/b.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"b":1}`, string(got))

	assert.Equal(t, []string{"deep/nested/b.json", "lib/a.js"}, c.Names())
	assert.NoError(t, c.Close())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte("definitely not a zip"))
	assert.Error(t, err)
}

func TestOpenZip(t *testing.T) {
	data, err := Encode([]Entry{{Name: "index.js", Data: []byte("1")}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "app.zip")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	a, name, err := Open(path, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	defer Close(a)

	assert.Equal(t, "app", name)
	assert.True(t, a.Has("index.js"))

	_, ok := Capability[Recorder](a)
	assert.False(t, ok, "containers do not record")
	_, ok = Capability[FileProvider](a)
	assert.True(t, ok)
}

func TestOpenBeside(t *testing.T) {
	data, err := Encode([]Entry{{Name: "index.js", Data: []byte("1")}})
	require.NoError(t, err)
	binary := []byte("\x7fELF\x02\x01\x01 launcher code")

	t.Run("appended archive", func(t *testing.T) {
		exe := filepath.Join(t.TempDir(), "app")
		require.NoError(t, os.WriteFile(exe, append(append([]byte{}, binary...), data...), 0o755))

		a, err := OpenBeside(exe, Options{TempDir: t.TempDir()})
		require.NoError(t, err)
		defer Close(a)
		assert.True(t, a.Has("index.js"))
	})

	t.Run("sibling zip", func(t *testing.T) {
		dir := t.TempDir()
		exe := filepath.Join(dir, "app.exe")
		require.NoError(t, os.WriteFile(exe, binary, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "app.zip"), data, 0o644))

		a, err := OpenBeside(exe, Options{TempDir: t.TempDir()})
		require.NoError(t, err)
		defer Close(a)
		assert.True(t, a.Has("index.js"))
		_, ok := Capability[FileProvider](a)
		assert.True(t, ok)
	})

	t.Run("neither", func(t *testing.T) {
		exe := filepath.Join(t.TempDir(), "app")
		require.NoError(t, os.WriteFile(exe, binary, 0o755))

		_, err := OpenBeside(exe, Options{})
		var e *errors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errors.KindNotFound, e.Kind)
		assert.Contains(t, err.Error(), "no archive appended")
		assert.Contains(t, err.Error(), "app.zip")
	})
}

func TestSiblingZip(t *testing.T) {
	tests := []struct {
		exe  string
		name string
		zip  string
	}{
		{"/opt/bin/tool", "tool", "/opt/bin/tool.zip"},
		{"/opt/bin/tool.exe", "tool", "/opt/bin/tool.zip"},
		{"/opt/bin/tool.v2", "tool.v2", "/opt/bin/tool.v2.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.exe, func(t *testing.T) {
			exe := filepath.FromSlash(tt.exe)
			assert.Equal(t, tt.name, ExecutableName(exe))
			assert.Equal(t, filepath.FromSlash(tt.zip), SiblingZip(exe))
		})
	}
}

func TestOpenDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "myapp")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "x.js"), []byte("x"), 0o644))

	a, name, err := Open(root, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "myapp", name)

	_, ok := a.Get("lib/x.js")
	require.True(t, ok)

	rec, ok := Capability[Recorder](a)
	require.True(t, ok)
	assert.Equal(t, []string{"lib/x.js"}, rec.Seen())
}

func TestOpen_Rejects(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, _, err := Open(file, Options{})
	assert.Error(t, err)

	_, _, err = Open(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)
}

func TestRecording(t *testing.T) {
	r := WithRecording(memDir(t, map[string]string{"b.js": "b", "a.js": "a", "c.js": "c"}))

	assert.True(t, r.Has("c.js"))
	_, _ = r.Get("b.js")
	_, _ = r.Get("a.js")
	_, _ = r.Get("a.js")
	_, _ = r.Get("missing.js")

	assert.Equal(t, []string{"a.js", "b.js"}, r.Seen())
}

func TestTempFiles(t *testing.T) {
	dir := t.TempDir()
	tf := WithTempFiles(memDir(t, map[string]string{
		"addon.node": "native bytes",
		"copy.node":  "native bytes",
	}), dir)

	p1, err := tf.File("addon.node")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(p1))
	assert.Equal(t, ".node", filepath.Ext(p1))

	content, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "native bytes", string(content))

	p2, err := tf.File("addon.node")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	p3, err := tf.File("copy.node")
	require.NoError(t, err)
	assert.Equal(t, p1, p3, "identical content shares a path")

	_, err = tf.File("missing.node")
	assert.Error(t, err)
}

func TestCapability_Chain(t *testing.T) {
	a := WithTempFiles(WithRecording(memDir(t, map[string]string{"x": "1"})), t.TempDir())

	_, err := a.File("x")
	require.NoError(t, err)

	rec, ok := Capability[Recorder](a)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, rec.Seen(), "materialized files count as accessed")

	l, ok := Capability[Lister](a)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, l.Names())
}

func TestDirs(t *testing.T) {
	assert.Equal(t, []string{"a/", "a/b/"}, Dirs("a/b/c.js"))
	assert.Equal(t, []string{"a/"}, Dirs("a/b/"))
	assert.Nil(t, Dirs("top.js"))
}
