package writers

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"tqedit/types"
)

// WriteFileAtomic writes data next to path and renames it into place, so a failure
// at any point leaves the old file as it was.
func WriteFileAtomic(path string, data []byte) error {
	return write_atomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

func write_atomic(path string, fill func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return types.WrapError(types.KindIOFailure, "persist", errors.Wrap(err, "create temp file"))
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = fill(tmp); err != nil {
		return types.WrapError(types.KindIOFailure, "persist", errors.Wrapf(err, "write %s", tmpName))
	}
	if err = tmp.Sync(); err != nil {
		return types.WrapError(types.KindIOFailure, "persist", errors.Wrap(err, "sync"))
	}
	if err = tmp.Close(); err != nil {
		return types.WrapError(types.KindIOFailure, "persist", errors.Wrap(err, "close"))
	}
	if st, serr := os.Stat(path); serr == nil {
		os.Chmod(tmpName, st.Mode().Perm())
	}
	if err = os.Rename(tmpName, path); err != nil {
		return types.WrapError(types.KindIOFailure, "persist", errors.Wrapf(err, "replace %s", path))
	}
	return nil
}

// ZipEntry is one file to put in an archive.  Exactly one of Data and Source is used:
// Source is a file on disk copied with its modification time.
type ZipEntry struct {
	Name     string
	Data     []byte
	Source   string
	Modified time.Time
}

// WriteZipAtomic builds a new archive holding entries and moves it to path.
func WriteZipAtomic(path string, entries []ZipEntry) error {
	return write_atomic(path, func(f *os.File) error {
		zw := zip.NewWriter(f)
		for _, e := range entries {
			if err := add_zip_entry(zw, e); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}

func add_zip_entry(zw *zip.Writer, e ZipEntry) error {
	hdr := &zip.FileHeader{Name: filepath.ToSlash(e.Name), Method: zip.Deflate, Modified: e.Modified}
	var src io.Reader
	if e.Source != "" {
		f, err := os.Open(e.Source)
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		hdr.Modified = st.ModTime()
		src = f
	}
	if hdr.Modified.IsZero() {
		hdr.Modified = time.Now()
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if src != nil {
		_, err = io.Copy(w, src)
		return err
	}
	_, err = w.Write(e.Data)
	return err
}

// DirEntries lists every regular file under dir as zip entries rooted at prefix.
// Files whose base name matches exclude (if not nil) are skipped.
func DirEntries(dir string, prefix string, exclude *regexp.Regexp) ([]ZipEntry, error) {
	out := []ZipEntry{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if exclude != nil && exclude.MatchString(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, ZipEntry{Name: filepath.Join(prefix, rel), Source: p})
		return nil
	})
	if err != nil {
		return nil, types.WrapError(types.KindIOFailure, "archive", errors.Wrapf(err, "walk %s", dir))
	}
	return out, nil
}

// CopyDir copies regular files from src into dst (created), skipping excluded names.
func CopyDir(src string, dst string, exclude *regexp.Regexp) error {
	entries, err := DirEntries(src, "", exclude)
	if err != nil {
		return err
	}
	for _, e := range entries {
		target := filepath.Join(dst, e.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return types.WrapError(types.KindIOFailure, "copy", err)
		}
		data, err := os.ReadFile(e.Source)
		if err != nil {
			return types.WrapError(types.KindIOFailure, "copy", err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return types.WrapError(types.KindIOFailure, "copy", err)
		}
	}
	return nil
}
