// Command snapfsctl is the administrative control surface for a mounted
// snapfs image: snapshot create/delete/restore/list plus a handful of
// inspection commands, structured the way the teacher's
// cmd/pgtokenstore/main.go wraps every action in a withX helper that
// opens the backing store once per invocation.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/weberc2/snapfs/internal/config"
	"github.com/weberc2/snapfs/pkg/snapfs"
)

func main() {
	app := cli.App{
		Name:        "snapfsctl",
		Description: "administrative interface for a mounted snapfs image",
		Commands: []*cli.Command{{
			Name:        "status",
			Description: "print the superblock and free-space counters",
			Action: withFS(func(fs *snapfs.FileSystem, ctx *cli.Context) error {
				return printJSON(fs.Superblock())
			}),
		}, {
			Name:        "ls",
			Description: "list a directory's live entries",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "ino", Value: snapfs.RootIno, Usage: "directory inode number"},
			},
			Action: withFS(func(fs *snapfs.FileSystem, ctx *cli.Context) error {
				entries, err := fs.List(uint32(ctx.Uint64("ino")))
				if err != nil {
					return fmt.Errorf("listing directory: %w", err)
				}
				return printJSON(entries)
			}),
		}, {
			Name:        "snapshot",
			Description: "commands for managing snapshots",
			Subcommands: []*cli.Command{{
				Name:        "create",
				Aliases:     []string{"make"},
				Description: "create a new snapshot of the live filesystem",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "id", Usage: "specific snapshot id to use; 0 picks the lowest free id"},
				},
				Action: withFS(func(fs *snapfs.FileSystem, ctx *cli.Context) error {
					id, err := fs.CreateSnapshot(uint32(ctx.Uint64("id")))
					if err != nil {
						return fmt.Errorf("creating snapshot: %w", err)
					}
					return printJSON(struct {
						ID uint32 `json:"id"`
					}{id})
				}),
			}, {
				Name:        "delete",
				Aliases:     []string{"rm", "remove"},
				Description: "delete a snapshot",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "id", Required: true, Usage: "snapshot id to delete"},
				},
				Action: withFS(func(fs *snapfs.FileSystem, ctx *cli.Context) error {
					return fs.DeleteSnapshot(uint32(ctx.Uint64("id")))
				}),
			}, {
				Name:        "restore",
				Description: "restore the live filesystem to a snapshot's state",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "id", Required: true, Usage: "snapshot id to restore"},
				},
				Action: withFS(func(fs *snapfs.FileSystem, ctx *cli.Context) error {
					return fs.RestoreSnapshot(uint32(ctx.Uint64("id")))
				}),
			}, {
				Name:        "list",
				Description: "list every existing snapshot",
				Action: withFS(func(fs *snapfs.FileSystem, ctx *cli.Context) error {
					return printJSON(fs.ListSnapshots())
				}),
			}},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withFS(f func(*snapfs.FileSystem, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		vol, err := snapfs.OpenFileVolume(cfg.ImagePath)
		if err != nil {
			return fmt.Errorf("opening image: %w", err)
		}
		defer vol.Close()

		fs, err := snapfs.Mount(vol, nil)
		if err != nil {
			return fmt.Errorf("mounting image: %w", err)
		}

		if err := f(fs, ctx); err != nil {
			return err
		}
		return fs.Unmount()
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if _, err := fmt.Printf("%s\n", data); err != nil {
		return fmt.Errorf("writing JSON to stdout: %w", err)
	}
	return nil
}
