package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/packager"
	"github.com/wippyai/modrun/runtime"
)

// source is an opened archive and where it came from.
type source struct {
	archive archive.Archive
	name    string
	path    string
}

func (s *source) Close() error {
	return archive.Close(s.archive)
}

// openSource opens path, or the archive shipped with the executable when
// path is empty.
func openSource(path string) (*source, error) {
	opts := archive.Options{TempDir: cfg.TempDir()}
	s := &source{path: path}

	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseArchive, errors.KindNotFound, err, "locate executable")
		}
		a, err := archive.OpenEmbedded(opts)
		if err != nil {
			return nil, err
		}
		s.archive, s.path = a, exe
		s.name = archive.ExecutableName(exe)
	} else {
		a, name, err := archive.Open(path, opts)
		if err != nil {
			return nil, err
		}
		s.archive, s.name = a, name
	}

	if name := cfg.Name(); name != "" {
		s.name = name
	}
	return s, nil
}

// derivedOutput is <name>.zip next to the source.
func (s *source) derivedOutput() string {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		abs = s.path
	}
	return filepath.Join(filepath.Dir(abs), s.name+".zip")
}

func (s *source) runner() *runtime.Runner {
	return runtime.New(s.archive, s.name, runtime.Options{
		Conditions:   cfg.Conditions(),
		WasmCacheDir: cfg.WasmCache(),
	})
}

// splitArgs separates the archive path from the script's argv. Everything
// after "--", or after the path, is argv.
func splitArgs(cmd *cobra.Command, args []string) (string, []string) {
	positional, argv := args, []string(nil)
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional, argv = args[:dash], args[dash:]
	}
	if len(positional) == 0 {
		return "", argv
	}
	return positional[0], append(positional[1:], argv...)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [path] [-- args...]",
		Short: "Run the package root of an archive",
		Long: `Run materializes, links and evaluates the package root of the archive at
path, then calls its default export with args. The script's result is the
exit code.

When MODRUN_PACKAGE is set and the run succeeds, the entries the run read
are written to a new archive: "true" writes <name>.zip next to the source,
any other value is the output path.`,
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

			switch output := cfg.Package(); {
			case output == "":
				return nil
			case strings.EqualFold(output, "true"):
				return writePackage(src, src.derivedOutput(), packager.Options{})
			default:
				return writePackage(src, output, packager.Options{})
			}
		},
	}
}

func execute(ctx context.Context, src *source, argv []string) runtime.Outcome {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r := src.runner()
	defer r.Close()
	return r.Run(ctx, argv)
}

func writePackage(src *source, output string, opts packager.Options) error {
	data, err := packager.Package(src.archive, opts)
	if err != nil {
		return err
	}
	if data == nil {
		packager.Logger().Warn("archive does not record accesses, skipping packaging",
			zap.String("source", src.path))
		return nil
	}
	if err := packager.WriteFile(output, data); err != nil {
		return err
	}
	packager.Logger().Info("archive written", zap.String("path", output), zap.Int("bytes", len(data)))
	return nil
}
