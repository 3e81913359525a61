package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/tmodkit/internal/scanner"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

func newScanCmd(a *app) *cobra.Command {
	var ext string
	cmd := &cobra.Command{
		Use:   "scan <file|dir>...",
		Short: "Run the script security scanner over source files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.context(cmd)
			files, err := scanTargets(args, ext)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			unsafe := 0
			for _, f := range files {
				res, err := scanner.CheckFile(f)
				if err != nil {
					return err
				}
				if res.Safe {
					fmt.Fprintf(out, "ok      %s\n", f)
					continue
				}
				unsafe++
				scanner.LogViolations(ctx, a.L, f, res.Violations)
				fmt.Fprintf(out, "REJECT  %s\n", f)
				for _, v := range res.Violations {
					fmt.Fprintf(out, "        %s\n", v)
				}
			}
			if unsafe > 0 {
				return xerrors.Newf("%d of %d scripts failed the security check", unsafe, len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ext, "ext", ".cs", "extension of script files picked up from directories")
	return cmd
}

// scanTargets expands directories into the files under them with ext.
// Files named directly are always scanned.
func scanTargets(args []string, ext string) ([]string, error) {
	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if p == arg || strings.EqualFold(filepath.Ext(p), ext) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, xerrors.Wrapf(err, "scan %s", arg)
		}
	}
	return files, nil
}
