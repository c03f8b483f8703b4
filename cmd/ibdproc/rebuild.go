package main

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/innodb-tools/ibdproc/internal/cfg"
	"github.com/innodb-tools/ibdproc/internal/rebuild"
	"github.com/innodb-tools/ibdproc/internal/sdi"
)

// newRebuildCmd implements mode 5: rebuild <in.ibd> <out.ibd> [flags].
func newRebuildCmd(gf *globalFlags) *cobra.Command {
	var (
		sdiJSONPath    string
		targetSDIPath  string
		indexIDMapPath string
		cfgOut         string
		useTargetRoot  bool
		useSourceRoot  bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild <in.ibd> <out.ibd>",
		Short: "Rebuild a compressed tablespace into a fully uncompressed 16KiB-page one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath, outPath := args[0], args[1]

			_, log, err := gf.resolve()
			if err != nil {
				return err
			}

			remap := rebuild.IndexIDRemap{}
			if indexIDMapPath != "" {
				m, err := loadIndexIDMap(indexIDMapPath)
				if err != nil {
					return err
				}
				remap = m
			}

			engine := rebuild.NewEngine(log)
			opts := rebuild.Options{
				Remap:         remap,
				UseSourceRoot: useSourceRoot,
				UseTargetRoot: useTargetRoot,
			}
			if err := engine.Rebuild(inPath, outPath, opts); err != nil {
				return err
			}

			if cfgOut != "" && sdiJSONPath != "" {
				if err := writeCFGFromSDI(sdiJSONPath, cfgOut); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sdiJSONPath, "sdi-json", "", "source SDI JSON, used to derive .cfg column metadata")
	cmd.Flags().StringVar(&targetSDIPath, "target-sdi-json", "", "target SDI JSON (accepted but not read: no index-id matching by name is done)")
	cmd.Flags().StringVar(&indexIDMapPath, "index-id-map", "", "src=dst index id remap file")
	cmd.Flags().StringVar(&cfgOut, "cfg-out", "", "write a .cfg file for IMPORT TABLESPACE")
	cmd.Flags().BoolVar(&useTargetRoot, "use-target-sdi-root", false, "accepted but not acted on: the SDI root is always rebuilt from the source entries")
	cmd.Flags().BoolVar(&useSourceRoot, "use-source-sdi-root", false, "accepted but not acted on: the SDI root is always rebuilt from the source entries")
	cmd.Flags().Int64("target-sdi-root", 0, "accepted but not read: the SDI root stays on the source's SDI page number")
	cmd.Flags().String("target-ibd", "", "accepted but not read")
	cmd.Flags().Bool("validate-remap", false, "accepted but not read: the index-id remap is not validated")
	_ = targetSDIPath

	return cmd
}

// loadIndexIDMap parses "<u64>=<u64>" or "<u64> <u64>" lines, skipping
// "#"-prefixed comments and blank lines.
func loadIndexIDMap(path string) (rebuild.IndexIDRemap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	remap := rebuild.IndexIDRemap{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.ReplaceAll(line, "=", " ")
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		src, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		dst, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		remap[src] = dst
	}
	return remap, scanner.Err()
}

func writeCFGFromSDI(sdiPath, cfgPath string) error {
	raw, err := os.ReadFile(sdiPath)
	if err != nil {
		return err
	}
	doc, err := sdi.ExtractJSON(raw)
	if err != nil {
		return err
	}
	table, err := sdi.ParseTable(doc)
	if err != nil {
		return err
	}
	cols := cfg.FromTable(table)
	return cfg.Write(cfgPath, cfg.Document{
		TableName:       table.Name,
		CurrentColCount: uint32(len(cols)),
		TotalColCount:   uint32(len(cols)),
		InitialColCount: uint32(len(cols)),
		Columns:         cols,
		// writeCFGFromSDI is only reachable with an SDI document in
		// hand, so the source tablespace always carries an SDI root.
		Indexes: cfg.IndexesFromTable(table, true),
	})
}
