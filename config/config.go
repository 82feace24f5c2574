// Package config reads tqedit.ini.  Command line flags override anything in it.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const FileName = "tqedit.ini"

type Config struct {
	// Dir is where save games live: one "_Name" directory per character.
	Dir       string
	BackupDir string
	// Journal holds pending edits between runs.
	Journal          string
	LogLevel         string
	AlwaysFullBackup bool
}

func defaults() Config {
	wd, _ := os.Getwd()
	return Config{
		Dir:      wd,
		Journal:  "tqedit.tmp",
		LogLevel: "info",
	}
}

// Load reads path.  A missing file is fine and gives the defaults; a broken one is not.
func Load(path string) (Config, error) {
	c := defaults()
	if _, err := os.Stat(path); err != nil {
		return finish(c), nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return c, errors.Wrapf(err, "read %s", path)
	}
	// default section can be represented as empty string
	sec := cfg.Section("")
	if dir := sec.Key("dir").String(); dir != "" {
		c.Dir = dir
	}
	if dir := sec.Key("backup_dir").String(); dir != "" {
		c.BackupDir = dir
	}
	if j := sec.Key("journal").String(); j != "" {
		c.Journal = j
	}
	if lvl := sec.Key("log_level").String(); lvl != "" {
		c.LogLevel = lvl
	}
	if sec.HasKey("always_full_backup") {
		full, err := sec.Key("always_full_backup").Bool()
		if err != nil {
			return c, errors.Wrap(err, "always_full_backup")
		}
		c.AlwaysFullBackup = full
	}
	return finish(c), nil
}

// WithDir points c at another save dir.  A backup dir that was only derived from the
// old one follows it.
func (c Config) WithDir(dir string) Config {
	if c.BackupDir == filepath.Join(c.Dir, "backup") {
		c.BackupDir = ""
	}
	c.Dir = dir
	return finish(c)
}

// finish fills in whatever is derived from other settings.
func finish(c Config) Config {
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.Dir, "backup")
	}
	return c
}
