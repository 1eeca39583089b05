package builtin

import (
	"io"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Console implements the console builtin. Lines go to Out (log, info, debug)
// or Err (warn, error) and are mirrored to the package logger.
type Console struct {
	Out io.Writer
	Err io.Writer
	mu  sync.Mutex
}

// Namespace returns the builtin name.
func (c *Console) Namespace() string { return "console" }

func (c *Console) Log(args ...goja.Value)   { c.write(c.Out, zapcore.InfoLevel, args) }
func (c *Console) Info(args ...goja.Value)  { c.write(c.Out, zapcore.InfoLevel, args) }
func (c *Console) Debug(args ...goja.Value) { c.write(c.Out, zapcore.DebugLevel, args) }
func (c *Console) Warn(args ...goja.Value)  { c.write(c.Err, zapcore.WarnLevel, args) }
func (c *Console) Error(args ...goja.Value) { c.write(c.Err, zapcore.ErrorLevel, args) }

func (c *Console) write(w io.Writer, level zapcore.Level, args []goja.Value) {
	line := Format(args...)
	if ce := Logger().Check(level, "console"); ce != nil {
		ce.Write(zap.String("line", line))
	}
	if w == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(w, line+"\n")
}
