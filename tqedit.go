package main

// save game editor for Titan Quest
//
// example usage:
//
// tqedit load _Hero/Player.chr
// tqedit set skillPoints 20
// tqedit set str 300
// tqedit save
//
// Edits are kept in a journal between runs and only written to the save on "save".

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"tqedit/config"
	"tqedit/player"
	"tqedit/readers"
	"tqedit/session"
	"tqedit/stash"
	"tqedit/types"
	"tqedit/utils"
)

// Evil global variables
var g_config config.Config

var formats = map[string]*readers.Format{
	player.Format.Name: player.Format,
	stash.Format.Name:  stash.Format,
}

func init_logger(level string) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("dir") {
		cfg = cfg.WithDir(c.String("dir"))
	}
	if c.IsSet("backup-dir") {
		cfg.BackupDir = c.String("backup-dir")
	}
	if c.IsSet("journal") {
		cfg.Journal = c.String("journal")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	g_config = cfg
	return init_logger(cfg.LogLevel)
}

// resolve finds a save file: as given, or under the configured save dir.
func resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(g_config.Dir, name)
}

func format_for(path string, name string) (*readers.Format, error) {
	if name == "" {
		if filepath.Base(path) == stash.FileName {
			return stash.Format, nil
		}
		return player.Format, nil
	}
	f, ok := formats[name]
	if !ok {
		return nil, errors.Errorf("unknown format %q (player or stash)", name)
	}
	return f, nil
}

// retrieve reopens whatever "load" loaded, with the journalled edits applied.
func retrieve() (*session.Session, error) {
	j, err := session.ReadJournal(g_config.Journal)
	if err != nil {
		if types.KindOf(err) == types.KindIOFailure {
			return nil, errors.Wrap(err, "nothing loaded, use \"load\" first")
		}
		return nil, err
	}
	f, ok := formats[j.Format]
	if !ok {
		return nil, errors.Errorf("journal is for an unknown format %q", j.Format)
	}
	s, err := session.Load(j.Source, f)
	if err != nil {
		return nil, err
	}
	if err := s.Resume(j); err != nil {
		return nil, err
	}
	return s, nil
}

// lookup resolves what the user typed to one variable.  With a block offset the
// name is looked for in that block only.  Exact names and aliases win; otherwise
// the name is matched fuzzily against every variable name in the file.
func lookup(s *session.Session, what string, block int) (*types.Variable, error) {
	find := func(name string) (*types.Variable, error) {
		if block >= 0 {
			return s.Index.Var(block, name)
		}
		var found *types.Block
		s.Index.Walk(func(b *types.Block) error {
			if found == nil && len(b.Find(name)) > 0 {
				found = b
			}
			return nil
		})
		if found == nil {
			return nil, types.NewError(types.KindNotFound, "lookup", -1, "no variable "+name)
		}
		return s.Index.Var(found.Start, name)
	}

	v, err := find(what)
	if types.KindOf(err) != types.KindNotFound {
		return v, err
	}
	name, merr := utils.FuzzyMatch(s.Index.VarNames(), what, "variable")
	if merr != nil {
		return nil, merr
	}
	return find(name)
}

func backup(s *session.Session, full bool) error {
	path, err := s.Backup(g_config.BackupDir, full || g_config.AlwaysFullBackup, time.Now())
	if err != nil {
		return err
	}
	fmt.Println("Backup in", path)
	return nil
}

var blockFlag = &cli.IntFlag{Name: "block", Value: -1, Usage: "Offset of the block holding the variable (see dump)"}

func new_app() *cli.App {
	app := &cli.App{
		Name:  "tqedit",
		Usage: "Titan Quest save file editor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: config.FileName, Usage: "Config file path", EnvVars: []string{"TQEDIT_CONFIG"}},
			&cli.StringFlag{Name: "dir", Usage: "Save game directory", EnvVars: []string{"TQEDIT_DIR"}},
			&cli.StringFlag{Name: "backup-dir", Usage: "Where backups go"},
			&cli.StringFlag{Name: "journal", Usage: "Pending edits file"},
			&cli.StringFlag{Name: "log-level", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: setup,
	}

	app.Commands = []*cli.Command{
		{
			Name:      "load",
			Usage:     "Load a save file for editing",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "format", Usage: "player or stash; guessed from the file name if not given"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return errors.New("Load what?  Filename expected.")
				}
				path := resolve(c.Args().First())
				f, err := format_for(path, c.String("format"))
				if err != nil {
					return err
				}
				s, err := session.Load(path, f)
				if err != nil {
					return err
				}
				fmt.Printf("Loaded %v (%v, %v)\n", s.Path, s.Format.Name, s.Platform())
				return s.WriteJournal(g_config.Journal)
			},
		},
		{
			Name:  "dump",
			Usage: "List everything in the loaded file",
			Action: func(c *cli.Context) error {
				s, err := retrieve()
				if err != nil {
					return err
				}
				for _, line := range dump(s) {
					fmt.Println(line)
				}
				return nil
			},
		},
		{
			Name:      "get",
			Usage:     "Show a variable",
			ArgsUsage: "NAME",
			Flags:     []cli.Flag{blockFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return errors.New("Get what?  Variable name expected.")
				}
				s, err := retrieve()
				if err != nil {
					return err
				}
				v, err := lookup(s, c.Args().First(), c.Int("block"))
				if err != nil {
					return err
				}
				val, err := s.Value(v.BlockOffset, ref(v))
				if err != nil {
					return err
				}
				fmt.Printf("%v: %v\n", ref(v), utils.FormatValue(val))
				return nil
			},
		},
		{
			Name:      "set",
			Usage:     "Change a variable",
			ArgsUsage: "NAME VALUE",
			Flags:     []cli.Flag{blockFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					return errors.New("Set what to what?  Variable name and value expected.")
				}
				s, err := retrieve()
				if err != nil {
					return err
				}
				v, err := lookup(s, c.Args().Get(0), c.Int("block"))
				if err != nil {
					return err
				}
				val, err := utils.ParseValue(c.Args().Get(1), v.Type)
				if err != nil {
					return err
				}
				if err := s.Changes.SetScalar(v.BlockOffset, ref(v), val); err != nil {
					return err
				}
				fmt.Println(ref(v), "set to", utils.FormatValue(val))
				return s.WriteJournal(g_config.Journal)
			},
		},
		{
			Name:      "remove",
			Usage:     "Remove a variable, or a whole block with --block and no name",
			ArgsUsage: "[NAME]",
			Flags:     []cli.Flag{blockFlag},
			Action: func(c *cli.Context) error {
				s, err := retrieve()
				if err != nil {
					return err
				}
				if c.NArg() == 0 {
					if c.Int("block") < 0 {
						return errors.New("Remove what?  Variable name or --block expected.")
					}
					if err := s.Changes.RemoveBlock(c.Int("block")); err != nil {
						return err
					}
					fmt.Println("Block", c.Int("block"), "removed")
					return s.WriteJournal(g_config.Journal)
				}
				v, err := lookup(s, c.Args().First(), c.Int("block"))
				if err != nil {
					return err
				}
				if err := s.Changes.RemoveVariable(v.BlockOffset, ref(v)); err != nil {
					return err
				}
				fmt.Println(ref(v), "removed")
				return s.WriteJournal(g_config.Journal)
			},
		},
		{
			Name:  "save",
			Usage: "Write pending edits to the save file",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "no-backup", Usage: "Don't back up the old file first"},
			},
			Action: func(c *cli.Context) error {
				s, err := retrieve()
				if err != nil {
					return err
				}
				// Since this is a "powerful" (i.e. capable of completely trashing savefiles) tool,
				// backing up first is probably a good idea
				if !c.Bool("no-backup") {
					if err := backup(s, false); err != nil {
						return err
					}
				}
				if err := s.Save(); err != nil {
					return err
				}
				fmt.Println("New file written to", s.Path)
				if err := session.RemoveJournal(g_config.Journal); err != nil {
					return err
				}
				fmt.Println("Temporary data cleaned up")
				return nil
			},
		},
		{
			Name:  "discard",
			Usage: "Forget pending edits",
			Action: func(c *cli.Context) error {
				return session.RemoveJournal(g_config.Journal)
			},
		},
		{
			Name:  "backup",
			Usage: "Zip the loaded character into the backup dir",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "full", Usage: "Include every file in the character's directory"},
			},
			Action: func(c *cli.Context) error {
				s, err := retrieve()
				if err != nil {
					return err
				}
				return backup(s, c.Bool("full"))
			},
		},
		{
			Name:      "copy",
			Usage:     "Copy the loaded character under a new name",
			ArgsUsage: "NAME",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "platform", Usage: "Convert the copy (windows or mobile)"},
				&cli.StringFlag{Name: "zip", Usage: "Write the copy into this archive"},
				&cli.BoolFlag{Name: "new-id", Usage: "Give the copy a new uniqueId"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return errors.New("Copy to what?  Character name expected.")
				}
				s, err := retrieve()
				if err != nil {
					return err
				}
				o := session.CopyOptions{Name: c.Args().First(), Zip: c.String("zip"), NewUniqueId: c.Bool("new-id")}
				if c.IsSet("platform") {
					if o.Target, err = types.ParsePlatform(c.String("platform")); err != nil {
						return err
					}
				}
				out, err := s.Copy(o)
				if err != nil {
					return err
				}
				fmt.Println("Copied to", out)
				return nil
			},
		},
		{
			Name:      "convert",
			Usage:     "Convert the loaded player file to another platform",
			ArgsUsage: "PLATFORM",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return errors.New("Convert to what?  windows or mobile.")
				}
				target, err := types.ParsePlatform(c.Args().First())
				if err != nil {
					return err
				}
				s, err := retrieve()
				if err != nil {
					return err
				}
				if s.Format != player.Format {
					return errors.New("only player files can be converted")
				}
				if err := player.Convert(s.Changes, target, session.NewSaveId()); err != nil {
					return err
				}
				fmt.Println("Conversion to", target, "pending, \"save\" to write it")
				return s.WriteJournal(g_config.Journal)
			},
		},
		{
			Name:  "watch",
			Usage: "Report when the game rewrites the loaded file",
			Action: func(c *cli.Context) error {
				s, err := retrieve()
				if err != nil {
					return err
				}
				defer s.Close()
				changed := make(chan string, 1)
				if err := s.Watch(changed); err != nil {
					return err
				}
				interrupt := make(chan os.Signal, 1)
				signal.Notify(interrupt, os.Interrupt)
				fmt.Println("Watching", s.Path)
				select {
				case path := <-changed:
					fmt.Println(path, "changed on disk; pending edits no longer apply, load it again")
				case <-interrupt:
				}
				return nil
			},
		},
	}

	return app
}

func main() {
	if err := new_app().Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(exit_code(err))
	}
}

// ref is the name that picks v out of its block.
func ref(v *types.Variable) string {
	if v.Alias != "" {
		return v.Alias
	}
	return v.Name
}

// exit_code gives scripts something to go on: 1 for anything, more for known kinds.
func exit_code(err error) int {
	if k := types.KindOf(err); k != types.KindOther {
		return 1 + int(k)
	}
	return 1
}
