package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/innodb-tools/ibdproc/internal/model"
	"github.com/innodb-tools/ibdproc/internal/pipeline"
)

// newDecompressCmd implements mode 2: decompress <in.ibd> <out.ibd>.
// Metadata pages retain their physical size in the output — this mode
// does not produce a uniformly 16 KiB-paged file, unlike rebuild (mode 5).
func newDecompressCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decompress <in.ibd> <out.ibd>",
		Short: "Decompress INDEX/RTREE/SDI pages to logical size, leaving other pages as-is",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath, outPath := args[0], args[1]

			_, log, err := gf.resolve()
			if err != nil {
				return err
			}

			opts := pipeline.Options{Decompress: true, Workers: gf.workers}
			p, err := pipeline.Open(inPath, opts, log)
			if err != nil {
				return err
			}
			defer p.Close()

			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer out.Close()

			// Pages are written back to back rather than at a
			// page_no-derived fixed stride: a page whose compressed
			// form inflated to logical size shifts every following
			// page's file offset, producing a mixed-page-size layout
			// that IMPORT TABLESPACE cannot consume directly.
			var writeOff int64
			return p.Run(context.Background(), opts, func(page model.Page) error {
				if _, err := out.WriteAt(page.Data, writeOff); err != nil {
					return err
				}
				writeOff += int64(len(page.Data))
				return nil
			})
		},
	}
}
