package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tqedit/types"
	"tqedit/writers"
)

// Files that travel with a character when only the essentials are backed up.
var backup_files = []string{"Player.chr", "winsys.dxb", "winsys.dxg"}

// BackupName is the archive name for a backup of name taken at now.  One archive per
// hour; a full backup gets its own.
func BackupName(name string, full bool, now time.Time) string {
	if full {
		name += "-fullbackup"
	}
	return name + "_" + now.Format("20060102_15") + ".zip"
}

// Backup zips the session's character into backupDir and returns the archive path.
// Only the player and stash files go in unless full is set, in which case the whole
// character directory does.  An archive that already exists and is not empty is
// left alone.
func (s *Session) Backup(backupDir string, full bool, now time.Time) (string, error) {
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", types.WrapError(types.KindIOFailure, "backup", errors.Wrapf(err, "create %s", backupDir))
	}
	target := filepath.Join(backupDir, BackupName(s.Name, full, now))
	log := s.log.WithFields(logrus.Fields{"archive": target, "full": full})

	if st, err := os.Stat(target); err == nil && st.Size() > 0 {
		log.Info("backup already exists")
		return target, nil
	}

	dir := filepath.Dir(s.Path)
	prefix := filepath.Base(dir)
	var entries []writers.ZipEntry
	if full {
		var err error
		entries, err = writers.DirEntries(dir, prefix, nil)
		if err != nil {
			return "", err
		}
	} else {
		for _, f := range backup_files {
			p := filepath.Join(dir, f)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			entries = append(entries, writers.ZipEntry{Name: filepath.Join(prefix, f), Source: p})
		}
		// the loaded file always goes in, whatever it is called
		if !has_entry(entries, s.Path) {
			entries = append(entries, writers.ZipEntry{Name: filepath.Join(prefix, filepath.Base(s.Path)), Source: s.Path})
		}
	}

	if err := writers.WriteZipAtomic(target, entries); err != nil {
		return "", err
	}
	log.WithField("files", len(entries)).Info("backup written")
	return target, nil
}

func has_entry(entries []writers.ZipEntry, source string) bool {
	for _, e := range entries {
		if e.Source == source {
			return true
		}
	}
	return false
}
