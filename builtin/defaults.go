package builtin

import (
	"io"
	"os"
)

// Options configures the default builtins.
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Process *Process
}

// Default returns a registry holding console, path, process and util.
func Default(opts Options) (*Registry, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Process == nil {
		opts.Process = NewProcess(os.Args)
	}

	r := NewRegistry()
	hosts := []Host{
		&Console{Out: opts.Stdout, Err: opts.Stderr},
		&Path{Cwd: opts.Process.Dir},
		Util{},
	}
	for _, h := range hosts {
		if err := r.RegisterHost(h); err != nil {
			return nil, err
		}
	}
	if err := r.Register("process", opts.Process.Factory); err != nil {
		return nil, err
	}
	return r, nil
}
