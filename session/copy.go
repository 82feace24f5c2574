package session

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tqedit/changes"
	"tqedit/player"
	"tqedit/readers"
	"tqedit/stash"
	"tqedit/types"
	"tqedit/writers"
)

const PlayerFile = "Player.chr"

var (
	copy_exclude        = regexp.MustCompile(`(?i)^backup`)
	copy_exclude_mobile = regexp.MustCompile(`(?i)^(?:backup.*|\.winsys\.dxg|\.winsys\.dxb|SavingChar\.txt)$`)
	zip_exclude_mobile  = regexp.MustCompile(`(?i)^(?:backup.*|winsys\.dxg|winsys\.dxb|settings\.txt)$`)
)

type CopyOptions struct {
	// Name is the new character's name.
	Name string
	// Target converts the copy to another platform; PLATFORM_UNDEFINED keeps it.
	Target types.Platform
	// Zip writes the copy into this archive instead of a sibling directory.
	Zip string
	// NewUniqueId gives the copy a fresh uniqueId so the game sees two characters.
	NewUniqueId bool
}

// NewSaveId makes a mobile save id: ten random digits.
func NewSaveId() string {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteByte(byte('0' + rand.Intn(10)))
	}
	return sb.String()
}

// Copy writes a copy of the loaded character, with pending edits applied, under a
// new name.  The session itself is left untouched.  It returns the directory or
// archive written.
func (s *Session) Copy(o CopyOptions) (string, error) {
	if strings.TrimSpace(o.Name) == "" {
		return "", types.NewError(types.KindOther, "copy", -1, "character name can't be empty")
	}
	if s.Format != player.Format {
		return "", types.NewError(types.KindOther, "copy", -1, "only player files can be copied")
	}
	from := s.Platform()
	if o.Target == from || (o.Target == types.PLATFORM_UNDEFINED && o.Zip == "" && o.Name == s.Name) {
		return "", types.NewError(types.KindOther, "copy", -1,
			fmt.Sprintf("nothing to do copying %v to %v on %v", s.Name, o.Name, o.Target))
	}

	release, err := Acquire(s.Path)
	if err != nil {
		return "", err
	}
	defer release()

	log := s.log.WithFields(logrus.Fields{"to": o.Name, "target": o.Target, "zip": o.Zip})
	srcDir := filepath.Dir(s.Path)
	dstDir := filepath.Join(filepath.Dir(srcDir), "_"+o.Name)
	if o.Zip == "" {
		if _, err := os.Stat(dstDir); err == nil {
			return "", types.NewError(types.KindIOFailure, "copy", -1, "target directory already exists: "+dstDir)
		}
	} else if _, err := os.Stat(o.Zip); err == nil {
		return "", types.NewError(types.KindIOFailure, "copy", -1, "target archive already exists: "+o.Zip)
	}

	t := changes.New(s.Index)
	if err := t.Replay(s.Changes.Ops()); err != nil {
		return "", err
	}

	saveId := NewSaveId()
	zipDir := "_" + o.Name
	current, _ := s.ValueByName(player.PlayerName)
	if current != o.Name {
		if err := t.SetByName(player.PlayerName, o.Name); err != nil {
			return "", err
		}
		if from == types.PLATFORM_MOBILE && o.Target == types.PLATFORM_UNDEFINED {
			if err := t.SetByName(player.SaveId, saveId); err != nil {
				return "", err
			}
			zipDir = "__save" + saveId
		}
	} else if from == types.PLATFORM_MOBILE && o.Target == types.PLATFORM_UNDEFINED {
		id, err := s.ValueByName(player.SaveId)
		if err != nil {
			return "", err
		}
		zipDir = fmt.Sprint("__save", id)
	}
	if o.Target != types.PLATFORM_UNDEFINED {
		if o.Target == types.PLATFORM_MOBILE {
			zipDir = "__save" + saveId
		}
		if err := player.Convert(t, o.Target, saveId); err != nil {
			return "", err
		}
	}
	if o.NewUniqueId {
		if err := t.SetByName("uniqueId", uuid.New()); err != nil {
			return "", err
		}
	}

	out, err := writers.Rewrite(s.buf, s.Index, t)
	if err != nil {
		return "", err
	}
	if _, err := readers.Parse(out, s.Format); err != nil {
		return "", errors.Wrap(err, "copy produced an unreadable file")
	}

	if o.Zip != "" {
		if err := s.copy_zip(o, zipDir, out); err != nil {
			return "", err
		}
		log.WithField("dir", zipDir).Info("copied into archive")
		return o.Zip, nil
	}

	exclude := copy_exclude
	if o.Target != types.PLATFORM_UNDEFINED && from == types.PLATFORM_MOBILE {
		exclude = copy_exclude_mobile
	}
	if err := writers.CopyDir(srcDir, dstDir, exclude); err != nil {
		return "", err
	}
	if err := writers.WriteFileAtomic(filepath.Join(dstDir, PlayerFile), out); err != nil {
		return "", err
	}
	if err := resave_stash(dstDir); err != nil {
		log.WithError(err).Warn("stash not rewritten")
	}
	log.WithField("dir", dstDir).Info("copied")
	return dstDir, nil
}

func (s *Session) copy_zip(o CopyOptions, zipDir string, out []byte) error {
	var exclude *regexp.Regexp
	if o.Target == types.PLATFORM_MOBILE {
		exclude = zip_exclude_mobile
	}
	entries, err := writers.DirEntries(filepath.Dir(s.Path), zipDir, exclude)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !strings.EqualFold(filepath.Base(e.Name), PlayerFile) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, writers.ZipEntry{Name: filepath.Join(zipDir, PlayerFile), Data: out})
	return writers.WriteZipAtomic(o.Zip, kept)
}

func resave_stash(dir string) error {
	path := filepath.Join(dir, stash.FileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	st, err := Load(path, stash.Format)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Save()
}
