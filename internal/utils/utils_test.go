package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidInput(t *testing.T) {
	testCases := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"1234", false},
		{"set value", false},
		{"dddd", false},
		{"SetValue", true},
		{"CSimpleIniTempl::Save", true},
		{"~Converter", true},
		{"m_pData", true},
		{"set(", false},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValidInput(tc.input))
		})
	}
}

func TestFormatWithCommas(t *testing.T) {
	assert.Equal(t, "0", FormatWithCommas(0))
	assert.Equal(t, "999", FormatWithCommas(999))
	assert.Equal(t, "1,000", FormatWithCommas(1000))
	assert.Equal(t, "12,345,678", FormatWithCommas(12345678))
	assert.Equal(t, "-4,096", FormatWithCommas(-4096))
}

func TestCreateRankList(t *testing.T) {
	assert.Empty(t, CreateRankList(0))
	assert.Equal(t, []uint16{1, 2, 3}, CreateRankList(3))
}

func TestAnchorFilter(t *testing.T) {
	f := NewAnchorFilter(4)
	assert.True(t, f.ShouldInclude("a00007.html#aa1b4"))
	assert.True(t, f.ShouldInclude("a00007.html#a48ae"))
	assert.False(t, f.ShouldInclude("a00007.html#aa1b4"))
}

func TestIsShardDir(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsShardDir(dir, "{key}.msgpack"))
	assert.False(t, IsShardDir(filepath.Join(dir, "missing"), "{key}.msgpack"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.msgpack"), []byte{0x80}, 0o644))
	assert.True(t, IsShardDir(dir, "{key}.msgpack"))
	assert.False(t, IsShardDir(dir, "{key}.js"))
}

func TestParseTOMLWithRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[shards]\npreload = [\"s\", 1]\nwarm_workers = 2\n"), 0o644))

	data, err := ParseTOMLWithRecovery(path)
	require.NoError(t, err)
	section, ok := ExtractSection(data, "shards")
	require.True(t, ok)

	preload, ok := ExtractStrings(section, "preload")
	require.True(t, ok)
	assert.Equal(t, []string{"s"}, preload)

	workers, ok := ExtractInt64(section, "warm_workers")
	require.True(t, ok)
	assert.Equal(t, 2, workers)

	_, ok = ExtractString(section, "warm_workers")
	assert.False(t, ok)
}

func TestWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, WritableDir(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, WritableDir(file))
}

func TestExistingDir(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, ExistingDir(dir))

	missing := filepath.Join(dir, "missing")
	assert.ErrorIs(t, ExistingDir(missing), os.ErrNotExist)
	assert.NoDirExists(t, missing)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.ErrorContains(t, ExistingDir(file), "not a directory")
}

func TestSaveTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("old = true\n"), 0o644))

	data := struct {
		Pattern string `toml:"pattern"`
	}{Pattern: "{key}.js"}
	require.NoError(t, SaveTOMLFile(data, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pattern = \"{key}.js\"\n", string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
