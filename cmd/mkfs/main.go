// Command mkfs writes a fresh, empty snapfs image to disk, the offline
// formatter counterpart to the teacher's ext2/cmd/mkext2.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/weberc2/snapfs/pkg/snapfs"
)

func main() {
	app := cli.App{
		Name:        "mkfs",
		Description: "format a fresh snapfs image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Usage:    "path to the image file to create",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "blocks",
				Usage: "total number of 4KiB blocks in the image",
				Value: 16384,
			},
		},
		Action: func(ctx *cli.Context) error {
			path := ctx.String("path")
			blocks := uint32(ctx.Uint64("blocks"))

			vol, err := snapfs.CreateFileVolume(path, blocks)
			if err != nil {
				return fmt.Errorf("creating image: %w", err)
			}
			defer vol.Close()

			if err := snapfs.Format(vol, blocks); err != nil {
				return fmt.Errorf("formatting image: %w", err)
			}
			log.Printf(
				`{"message": "formatted image", "path": %q, "blocks": %d}`,
				path, blocks,
			)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
