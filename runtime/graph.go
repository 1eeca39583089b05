package runtime

import (
	"context"
	"io"
	"sort"

	"github.com/dop251/goja"

	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/module"
)

// Edge is one resolved static request.
type Edge struct {
	Specifier string
	ID        string
}

// Node describes one record of a linked graph.
type Node struct {
	ID      string
	Format  module.Format
	State   module.State
	Exports []string
	Deps    []Edge
	Err     error
}

// Graph materializes and links the package root without evaluating
// anything. The nodes built so far are returned along with any error.
func (r *Runner) Graph(ctx context.Context) ([]Node, error) {
	proc := r.process(nil)
	reg, err := builtin.Default(builtin.Options{Stdout: io.Discard, Stderr: io.Discard, Process: proc})
	if err != nil {
		return nil, err
	}
	vm := goja.New()
	defer reg.Release(vm)

	l := r.newLinker(ctx, vm, reg)
	rec, err := l.Materialize(l.Resolver().Root())
	if err == nil {
		err = l.Link(rec)
	}

	records := l.Records()
	nodes := make([]Node, 0, len(records))
	for _, rec := range records {
		n := Node{
			ID:      rec.ID,
			Format:  rec.Format,
			State:   rec.State,
			Exports: rec.Exports(),
			Err:     rec.Err,
		}
		sort.Strings(n.Exports)
		for _, spec := range rec.Requests {
			if dep := rec.Dep(spec); dep != nil {
				n.Deps = append(n.Deps, Edge{Specifier: spec, ID: dep.ID})
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, err
}
