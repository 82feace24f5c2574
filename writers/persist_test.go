package writers

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tqedit/types"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.chr")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0640))

	require.NoError(t, WriteFileAtomic(path, []byte("new contents")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(got))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), st.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicFailure(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "Player.chr"), []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIOFailure))
}

func zip_contents(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	out := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(b)
	}
	return out
}

func TestZipAndCopyDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "_Hero")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	for name, data := range map[string]string{
		"Player.chr":     "player",
		"winsys.dxb":     "stash",
		"backup_old.chr": "old",
		"sub/notes.txt":  "notes",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(data), 0644))
	}
	exclude := regexp.MustCompile(`(?i)^backup`)

	entries, err := DirEntries(src, "_Hero", exclude)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, filepath.ToSlash(e.Name))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"_Hero/Player.chr", "_Hero/sub/notes.txt", "_Hero/winsys.dxb"}, names)

	archive := filepath.Join(t.TempDir(), "hero.zip")
	entries = append(entries, ZipEntry{Name: "_Hero/extra.txt", Data: []byte("extra")})
	require.NoError(t, WriteZipAtomic(archive, entries))
	assert.Equal(t, map[string]string{
		"_Hero/Player.chr":    "player",
		"_Hero/winsys.dxb":    "stash",
		"_Hero/sub/notes.txt": "notes",
		"_Hero/extra.txt":     "extra",
	}, zip_contents(t, archive))

	dst := filepath.Join(t.TempDir(), "_Copy")
	require.NoError(t, CopyDir(src, dst, exclude))
	got, err := os.ReadFile(filepath.Join(dst, "sub", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "notes", string(got))
	_, err = os.Stat(filepath.Join(dst, "backup_old.chr"))
	assert.True(t, os.IsNotExist(err))
}
