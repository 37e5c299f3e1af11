package docstore

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"KEY_A": "echo a", "leds": [1, 2]}`)
	writeFile(t, dir, "b.toml", "loopDelay = 0.5\nholdThreshold = 2\nmultiKeyMode = \"sequence\"\n")
	writeFile(t, dir, "c.yaml", "initial_layer: default\nudev:\n  - 'ATTRS{idVendor}==\"1234\"'\n")

	s := New(dir, FormatJSON)

	a, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, "echo a", a["KEY_A"])
	assert.Equal(t, []any{1.0, 2.0}, a["leds"])

	b, err := s.Load("b")
	require.NoError(t, err)
	assert.Equal(t, 0.5, b["loopDelay"])
	assert.Equal(t, 2.0, b["holdThreshold"], "TOML integers are normalized to float64")

	c, err := s.Load("c")
	require.NoError(t, err)
	layer, ok := c.String("initial_layer")
	assert.True(t, ok)
	assert.Equal(t, "default", layer)
	rules, ok := c.Strings("udev")
	assert.True(t, ok)
	assert.Len(t, rules, 1)
}

func TestLoadMissing(t *testing.T) {
	s := New(t.TempDir(), FormatJSON)
	_, err := s.Load("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"KEY_A": `)

	s := New(dir, FormatJSON)
	_, err := s.Load("bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	var me *MalformedError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "bad", me.Name)

	assert.ErrorIs(t, s.Save("bad", Document{"KEY_B": "x"}), ErrMalformed)
	data, err := os.ReadFile(filepath.Join(dir, "bad.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"KEY_A": `, string(data))
}

func TestSaveMerges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "layer.json", `{"KEY_A": "echo a", "KEY_B": "echo b"}`)

	s := New(dir, FormatJSON)
	require.NoError(t, s.Save("layer", Document{"KEY_B": "echo bee", "KEY_C": "echo c"}))

	doc, err := s.Load("layer")
	require.NoError(t, err)
	assert.Equal(t, Document{"KEY_A": "echo a", "KEY_B": "echo bee", "KEY_C": "echo c"}, doc)
}

func TestSaveKeepsExistingFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.toml", "loopDelay = 0.1\n")

	s := New(dir, FormatJSON)
	require.NoError(t, s.Save("settings", Document{"forceBackground": true}))

	assert.Equal(t, filepath.Join(dir, "settings.toml"), s.Path("settings"))
	_, err := os.Stat(filepath.Join(dir, "settings.json"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	doc, err := s.Load("settings")
	require.NoError(t, err)
	assert.Equal(t, 0.1, doc["loopDelay"])
	assert.Equal(t, true, doc["forceBackground"])
}

func TestSaveCreatesInDefaultFormat(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, FormatYAML)
	require.NoError(t, s.Save("pad", Document{"initial_layer": "default"}))

	assert.FileExists(t, filepath.Join(dir, "pad.yaml"))
	assert.True(t, s.Exists("pad"))
}

func TestDeleteField(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "layer.json", `{"KEY_A": "echo a", "vars": {"foo": "bar", "baz": "qux"}}`)
	s := New(dir, FormatJSON)

	require.NoError(t, s.DeleteField("layer", []string{"vars", "foo"}))

	doc, err := s.Load("layer")
	require.NoError(t, err)
	vars, ok := doc.Sub("vars")
	require.True(t, ok)
	assert.Equal(t, Document{"baz": "qux"}, vars)

	assert.ErrorIs(t, s.DeleteField("layer", nil), ErrEmptyPath)
	assert.ErrorIs(t, s.DeleteField("layer", []string{"vars", "missing"}), ErrFieldNotFound)
	assert.ErrorIs(t, s.DeleteField("layer", []string{"KEY_A", "nested"}), ErrFieldNotFound)
}

func TestDeleteAtTopLevel(t *testing.T) {
	doc := Document{"KEY_A": "x", "KEY_B": "y"}
	require.NoError(t, doc.DeleteAt([]string{"KEY_A"}))
	assert.Equal(t, Document{"KEY_B": "y"}, doc)
}

func TestNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default.json", `{}`)
	writeFile(t, dir, "alt.toml", ``)
	writeFile(t, dir, "notes.txt", `ignored`)
	writeFile(t, dir, ".hidden.json", `{}`)

	names, err := New(dir, FormatJSON).Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"alt", "default"}, names)

	names, err = New(filepath.Join(dir, "missing"), FormatJSON).Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}
