package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/modrun/runtime"
)

func newGraphCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "graph [path]",
		Short: "Print the linked module graph without evaluating it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			if interactive {
				return runInteractive(path)
			}

			nodes, err := loadGraph(cmd, path)
			printGraph(cmd.OutOrStdout(), nodes)
			return err
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse the graph in a terminal UI")
	return cmd
}

func loadGraph(cmd *cobra.Command, path string) ([]runtime.Node, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	r := src.runner()
	defer r.Close()
	return r.Graph(cmd.Context())
}

func printGraph(w io.Writer, nodes []runtime.Node) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s [%s %s]\n", n.ID, n.Format, n.State)
		for _, d := range n.Deps {
			fmt.Fprintf(w, "  %s -> %s\n", d.Specifier, d.ID)
		}
		if len(n.Exports) > 0 {
			fmt.Fprintf(w, "  exports: %s\n", strings.Join(n.Exports, ", "))
		}
		if n.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", n.Err)
		}
	}
}
