package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/modrun/packager"
)

func newPackageCmd() *cobra.Command {
	var (
		output  string
		include []string
	)
	cmd := &cobra.Command{
		Use:   "package [path] [-- args...]",
		Short: "Run an archive and keep only the entries it read",
		Long: `Package runs the archive like run does, then writes the entries the run
read, plus any --include matches, to a new archive. A failed run writes
nothing.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, argv := splitArgs(cmd, args)
			src, err := openSource(path)
			if err != nil {
				return err
			}
			defer src.Close()

			out := execute(cmd.Context(), src, argv)
			exitCode = out.Code
			if out.Code != 0 {
				return nil
			}

			if output == "" {
				output = src.derivedOutput()
			}
			if err := writePackage(src, output, packager.Options{Include: include}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <name>.zip next to the source)")
	cmd.Flags().StringArrayVar(&include, "include", nil, "also include entries matching this pattern (repeatable)")
	return cmd
}
