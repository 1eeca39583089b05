package runtime

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/modrun/archive"
	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
)

type testRun struct {
	out    Outcome
	stdout string
	diag   string
}

func newRunner(t *testing.T, files map[string]string) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, "/"+name, []byte(content), 0o644))
	}
	var stdout, diag bytes.Buffer
	r := New(archive.NewDir(fs), "app", Options{
		Stdout:      &stdout,
		Stderr:      &stdout,
		Diagnostics: &diag,
		Env:         map[string]string{"GREETING": "hi"},
		Dir:         "/work",
	})
	t.Cleanup(func() { _ = r.Close() })
	return r, &stdout, &diag
}

func run(t *testing.T, files map[string]string, argv ...string) testRun {
	t.Helper()
	r, stdout, diag := newRunner(t, files)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := r.Run(ctx, argv)
	assert.NotEmpty(t, out.RunID)
	return testRun{out: out, stdout: stdout.String(), diag: diag.String()}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		argv  []string
		code  int
		out   string
	}{
		{
			name: "synchronous dynamic root",
			files: map[string]string{
				"package.json": `{"main": "main.cjs"}`,
				"main.cjs":     `module.exports = (argv) => argv.length + 40;`,
			},
			argv: []string{"a", "b"},
			code: 42,
		},
		{
			name: "asynchronous declarative root",
			files: map[string]string{
				"package.json": `{"exports": "./main.mjs"}`,
				"main.mjs":     `export default async function (argv) { await null; return 7; }`,
			},
			code: 7,
		},
		{
			name: "no entry function",
			files: map[string]string{
				"index.js": `console.log("hi %s", process.env.GREETING, process.cwd()); process.exitCode = 3;`,
			},
			code: 3,
			out:  "hi hi /work\n",
		},
		{
			name: "timer",
			files: map[string]string{
				"index.js": `export default () => new Promise((resolve) => setTimeout(() => resolve(9), 1));`,
			},
			code: 9,
		},
		{
			name: "top-level await",
			files: map[string]string{
				"index.js": `const v = await Promise.resolve(4); export default () => v * 2;`,
			},
			code: 8,
		},
		{
			name: "non-numeric result",
			files: map[string]string{
				"index.js": `export default () => "done";`,
			},
			code: 0,
		},
		{
			name: "fractional result",
			files: map[string]string{
				"index.js": `export default () => 2.9;`,
			},
			code: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.files, tt.argv...)
			require.NoError(t, res.out.Err)
			assert.Equal(t, tt.code, res.out.Code)
			assert.Empty(t, res.diag)
			if tt.out != "" {
				assert.Equal(t, tt.out, res.stdout)
			}
		})
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		code  int
		kind  errors.Kind
		text  string
	}{
		{
			name:  "evaluation error",
			files: map[string]string{"index.js": `export const a = 1; throw new Error("boom");`},
			code:  1,
			kind:  errors.KindEvaluation,
			text:  "boom",
		},
		{
			name:  "exit code kept on error",
			files: map[string]string{"index.js": `process.exitCode = 5; throw new Error("x");`},
			code:  5,
			kind:  errors.KindEvaluation,
		},
		{
			name:  "entry function throws",
			files: map[string]string{"index.js": `module.exports = () => { throw new RangeError("bad arg"); };`},
			code:  1,
			kind:  errors.KindEvaluation,
			text:  "bad arg",
		},
		{
			name:  "entry function rejects",
			files: map[string]string{"index.js": `export default async () => { await null; throw new Error("later"); };`},
			code:  1,
			kind:  errors.KindEvaluation,
			text:  "later",
		},
		{
			name:  "missing entry",
			files: map[string]string{"package.json": `{"main": "./gone.js"}`},
			code:  1,
			kind:  errors.KindResolution,
			text:  "gone.js",
		},
		{
			name:  "sync bridge",
			files: map[string]string{"index.js": `require("./slow.mjs");`, "slow.mjs": `await null;`},
			code:  1,
			kind:  errors.KindSyncBridge,
		},
		{
			name:  "stalled entry function",
			files: map[string]string{"index.js": `export default () => new Promise(() => {});`},
			code:  1,
			kind:  errors.KindEvaluation,
			text:  "evaluation stalled",
		},
		{
			name:  "stalled evaluation",
			files: map[string]string{"index.js": `await new Promise(() => {});`},
			code:  1,
			kind:  errors.KindEvaluation,
			text:  "evaluation stalled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.files)
			var e *errors.Error
			require.ErrorAs(t, res.out.Err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.code, res.out.Code)
			assert.Contains(t, res.out.Err.Error(), tt.text)
			assert.Contains(t, res.diag, "error: ")
			assert.Equal(t, 1, bytes.Count([]byte(res.diag), []byte("error: ")))
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	r, _, _ := newRunner(t, map[string]string{"index.js": `for (;;) {}`})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := r.Run(ctx, nil)
	require.Error(t, out.Err)
	assert.Equal(t, 1, out.Code)
}

type greeter struct{}

func (greeter) Namespace() string        { return "greeter" }
func (greeter) Hello(name string) string { return "hello " + name }

func TestRun_RegisteredBuiltins(t *testing.T) {
	r, _, _ := newRunner(t, map[string]string{
		"index.js": `
import { hello } from "greeter";
import { twice } from "node:mathx";
export default () => (hello("x") === "hello x" ? twice(5) + 1 : 2);
`,
	})
	r.RegisterHost(greeter{})
	r.RegisterFunc("mathx", "twice", func(n int) int { return n * 2 })

	out := r.Run(context.Background(), nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 11, out.Code)
}

func TestGraph(t *testing.T) {
	r, _, _ := newRunner(t, map[string]string{
		"package.json": `{"main": "./main.mjs"}`,
		"main.mjs":     `import "./dep.cjs"; import cfg from "./c.json"; throw new Error("never evaluated");`,
		"dep.cjs":      `exports.x = 1;`,
		"c.json":       `{}`,
	})
	nodes, err := r.Graph(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		assert.Equal(t, module.Linked, n.State, n.ID)
	}
	assert.Equal(t, []string{
		"archive://app/",
		"archive://app/c.json",
		"archive://app/dep.cjs",
		"archive://app/main.mjs",
	}, ids)

	assert.Equal(t, module.Shim, nodes[0].Format)
	assert.Equal(t, []Edge{{Specifier: "./main.mjs", ID: "archive://app/main.mjs"}}, nodes[0].Deps)
	assert.Equal(t, []string{"default", "x"}, nodes[2].Exports)
	assert.Len(t, nodes[3].Deps, 2)
}
