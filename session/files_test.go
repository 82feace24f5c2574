package session

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tqedit/player"
	"tqedit/readers"
	"tqedit/stash"
	"tqedit/testutil"
	"tqedit/types"
)

func zip_names(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	out := []string{}
	for _, f := range r.File {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

func zip_file(t *testing.T, path string, name string) []byte {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	f, err := r.Open(name)
	require.NoError(t, err)
	defer f.Close()
	buf, err := io.ReadAll(f)
	require.NoError(t, err)
	return buf
}

func TestBackupName(t *testing.T) {
	now := time.Date(2024, 3, 5, 7, 59, 0, 0, time.UTC)
	assert.Equal(t, "Hero_20240305_07.zip", BackupName("Hero", false, now))
	assert.Equal(t, "Hero-fullbackup_20240305_07.zip", BackupName("Hero", true, now))
}

func TestBackup(t *testing.T) {
	s := load(t)
	backups := t.TempDir()
	now := time.Now()

	path, err := s.Backup(backups, false, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"_Hero/Player.chr", "_Hero/winsys.dxb"}, zip_names(t, path))
	assert.Equal(t, testutil.PlayerBytes(), zip_file(t, path, "_Hero/Player.chr"))

	full, err := s.Backup(backups, true, now)
	require.NoError(t, err)
	assert.NotEqual(t, path, full)
	assert.Equal(t, []string{"_Hero/Player.chr", "_Hero/backup_old.chr", "_Hero/settings.txt", "_Hero/winsys.dxb"}, zip_names(t, full))

	// same hour: the first archive stays as it was
	require.NoError(t, s.Changes.SetByName("money", 1))
	require.NoError(t, s.Save())
	again, err := s.Backup(backups, false, now)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, testutil.PlayerBytes(), zip_file(t, path, "_Hero/Player.chr"))
}

func TestCopy(t *testing.T) {
	s := load(t)
	require.NoError(t, s.Changes.SetByName("money", 777))

	dir, err := s.Copy(CopyOptions{Name: "Achilles"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(filepath.Dir(s.Path)), "_Achilles"), dir)

	idx := testutil.MustParseFile(t, filepath.Join(dir, PlayerFile), player.Format)
	name, err := idx.FirstVar(player.PlayerName)
	require.NoError(t, err)
	assert.Equal(t, "Achilles", name.Value)
	money, err := idx.FirstVar("money")
	require.NoError(t, err)
	assert.Equal(t, int32(777), money.Value)
	uid, err := idx.FirstVar("uniqueId")
	require.NoError(t, err)
	assert.Equal(t, testutil.UniqueId, uid.Value)

	_, err = os.Stat(filepath.Join(dir, "settings.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "backup_old.chr"))
	assert.True(t, os.IsNotExist(err))
	testutil.MustParseFile(t, filepath.Join(dir, stash.FileName), stash.Format)

	// the source is untouched, pending edits included
	assert.Equal(t, testutil.PlayerBytes(), s.Bytes())
	assert.False(t, s.Changes.Empty())

	_, err = s.Copy(CopyOptions{Name: "Achilles"})
	assert.True(t, errors.Is(err, types.ErrIOFailure), "existing target")
	_, err = s.Copy(CopyOptions{Name: testutil.Name})
	assert.Error(t, err, "copy onto itself")
	_, err = s.Copy(CopyOptions{Name: " "})
	assert.Error(t, err)
}

func TestCopyNewUniqueId(t *testing.T) {
	s := load(t)
	dir, err := s.Copy(CopyOptions{Name: "Ajax", NewUniqueId: true})
	require.NoError(t, err)
	idx := testutil.MustParseFile(t, filepath.Join(dir, PlayerFile), player.Format)
	uid, err := idx.FirstVar("uniqueId")
	require.NoError(t, err)
	assert.NotEqual(t, testutil.UniqueId, uid.Value)
}

func TestCopySameNameZipKeepsEdits(t *testing.T) {
	s := load(t)
	require.NoError(t, s.Changes.SetByName("money", 777))
	archive := filepath.Join(t.TempDir(), "same.zip")

	_, err := s.Copy(CopyOptions{Name: s.Name, Zip: archive, NewUniqueId: true})
	require.NoError(t, err)
	assert.Contains(t, zip_names(t, archive), "_Hero/settings.txt")

	idx, err := readers.Parse(zip_file(t, archive, "_Hero/"+PlayerFile), player.Format)
	require.NoError(t, err)
	money, err := idx.FirstVar("money")
	require.NoError(t, err)
	assert.Equal(t, int32(777), money.Value)
	uid, err := idx.FirstVar("uniqueId")
	require.NoError(t, err)
	assert.NotEqual(t, testutil.UniqueId, uid.Value)

	// nothing pending: the archived player file is the one on disk
	plain := filepath.Join(t.TempDir(), "plain.zip")
	s.Changes.Reset()
	_, err = s.Copy(CopyOptions{Name: s.Name, Zip: plain})
	require.NoError(t, err)
	assert.Equal(t, s.Bytes(), zip_file(t, plain, "_Hero/"+PlayerFile))
}

func TestCopyToMobileZip(t *testing.T) {
	s := load(t)
	archive := filepath.Join(t.TempDir(), "mobile.zip")

	out, err := s.Copy(CopyOptions{Name: "Hector", Target: types.PLATFORM_MOBILE, Zip: archive})
	require.NoError(t, err)
	assert.Equal(t, archive, out)

	names := zip_names(t, archive)
	require.Len(t, names, 1, "stash, settings and backups stay behind")
	dir := filepath.Dir(names[0])
	assert.Regexp(t, `^__save[0-9]{10}$`, dir)

	buf := zip_file(t, archive, names[0])
	idx, err := readers.Parse(buf, player.Format)
	require.NoError(t, err)
	assert.Equal(t, types.PLATFORM_MOBILE, idx.Header.Platform)
	id, err := idx.FirstVar(player.SaveId)
	require.NoError(t, err)
	assert.Equal(t, dir, "__save"+id.Value.(string))
	name, err := idx.FirstVar(player.PlayerName)
	require.NoError(t, err)
	assert.Equal(t, "Hector", name.Value)

	_, err = s.Copy(CopyOptions{Name: "Hector", Target: types.PLATFORM_MOBILE, Zip: archive})
	assert.Error(t, err, "existing archive")
	_, err = s.Copy(CopyOptions{Name: "Hector", Target: types.PLATFORM_WINDOWS})
	assert.Error(t, err, "already windows")
}

func TestCopyHeldByGuard(t *testing.T) {
	s := load(t)
	release, err := Acquire(s.Path)
	require.NoError(t, err)
	defer release()
	_, err = s.Copy(CopyOptions{Name: "Paris"})
	assert.True(t, errors.Is(err, types.ErrConcurrentOperation))
}

func TestNewSaveId(t *testing.T) {
	assert.Regexp(t, `^[0-9]{10}$`, NewSaveId())
}

func TestJournal(t *testing.T) {
	s := load(t)
	journal := filepath.Join(t.TempDir(), "tqedit.tmp")
	skill := s.Index.NthBlockWith(player.SkillName, 0)

	require.NoError(t, s.Changes.SetByName(player.PlayerName, "Memnon"))
	require.NoError(t, s.Changes.RemoveBlock(skill.Start))
	require.NoError(t, player.Convert(s.Changes, types.PLATFORM_MOBILE, "0000000001"))
	require.NoError(t, s.WriteJournal(journal))
	want, err := s.Render()
	require.NoError(t, err)

	j, err := ReadJournal(journal)
	require.NoError(t, err)
	assert.Equal(t, s.Path, j.Source)
	assert.Equal(t, player.Format.Name, j.Format)

	again, err := Load(j.Source, player.Format)
	require.NoError(t, err)
	require.NoError(t, again.Resume(j))
	got, err := again.Render()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, RemoveJournal(journal))
	require.NoError(t, RemoveJournal(journal))
	_, err = ReadJournal(journal)
	assert.True(t, errors.Is(err, types.ErrIOFailure))
}

func TestStaleJournal(t *testing.T) {
	s := load(t)
	journal := filepath.Join(t.TempDir(), "tqedit.tmp")
	require.NoError(t, s.Changes.SetByName("money", 5))
	require.NoError(t, s.WriteJournal(journal))

	p := testutil.DefaultPlayer()
	p.Name = "Other"
	require.NoError(t, os.WriteFile(s.Path, p.Bytes(), 0644))

	j, err := ReadJournal(journal)
	require.NoError(t, err)
	again, err := Load(j.Source, player.Format)
	require.NoError(t, err)
	err = again.Resume(j)
	assert.True(t, errors.Is(err, types.ErrIOFailure))
	assert.True(t, again.Changes.Empty())
}

func TestCorruptJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tqedit.tmp")
	require.NoError(t, os.WriteFile(path, []byte("TQJ\x01garbage!"), 0644))
	_, err := ReadJournal(path)
	assert.True(t, errors.Is(err, types.ErrMalformedRecord))

	require.NoError(t, os.WriteFile(path, []byte("not a journal"), 0644))
	_, err = ReadJournal(path)
	assert.True(t, errors.Is(err, types.ErrMalformedRecord))

	// claims 4 GiB of raw data behind four stored bytes
	huge := append([]byte("TQJ\x01"), 0xff, 0xff, 0xff, 0xff, 4, 0, 0, 0, 1, 2, 3, 4)
	require.NoError(t, os.WriteFile(path, huge, 0644))
	_, err = ReadJournal(path)
	assert.True(t, errors.Is(err, types.ErrMalformedRecord))
}
