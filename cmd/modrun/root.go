package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/modrun/builtin"
	"github.com/wippyai/modrun/format"
	"github.com/wippyai/modrun/linker"
	"github.com/wippyai/modrun/manifest"
	"github.com/wippyai/modrun/packager"
	"github.com/wippyai/modrun/runtime"
)

// Environment variable prefix for modrun configuration.
const envPrefix = "MODRUN"

var cfg = newConfig()

// rootCmd is the base command for the modrun CLI.
var rootCmd = &cobra.Command{
	Use:   "modrun",
	Short: "Run module archives",
	Long: `modrun executes the package root of an archive: a directory, a .zip
container, or a container appended to the modrun executable itself.

Scripts may mix dynamic and declarative exports and import JSON, YAML,
TOML and CUE documents, WebAssembly modules and Go plugins.`,
	PersistentPreRunE: initializeGlobals,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "warn", "log level: debug, info, warn, error (env: MODRUN_LOG_LEVEL)")
	flags.String("name", "", "logical archive name (env: MODRUN_NAME)")
	flags.String("conditions", "", "comma separated export conditions (env: MODRUN_CONDITIONS)")
	flags.String("temp-dir", "", "directory for materialized native entries (env: MODRUN_TEMP_DIR)")
	flags.String("wasm-cache", "", "WebAssembly compilation cache directory (env: MODRUN_WASM_CACHE)")
	cfg.bind(flags)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newPackageCmd())
}

// config holds settings merged from flags and MODRUN_* variables.
type config struct {
	v *viper.Viper
}

func newConfig() *config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("package", "MODRUN_PACKAGE")
	v.SetDefault("log-level", "warn")

	return &config{v: v}
}

func (c *config) bind(flags *pflag.FlagSet) {
	for _, name := range []string{"log-level", "name", "conditions", "temp-dir", "wasm-cache"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}
}

func (c *config) LogLevel() string  { return c.v.GetString("log-level") }
func (c *config) Name() string      { return c.v.GetString("name") }
func (c *config) TempDir() string   { return c.v.GetString("temp-dir") }
func (c *config) WasmCache() string { return c.v.GetString("wasm-cache") }

// Package is MODRUN_PACKAGE: "true" for the derived path, otherwise an
// explicit output path. Empty disables post-run packaging.
func (c *config) Package() string { return c.v.GetString("package") }

func (c *config) Conditions() manifest.Conditions {
	return manifest.ParseConditions(c.v.GetString("conditions"))
}

// initializeGlobals sets up logging based on the configured level.
func initializeGlobals(cmd *cobra.Command, _ []string) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel())); err != nil {
		return err
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	log, err := zc.Build()
	if err != nil {
		return err
	}

	builtin.SetLogger(log.Named("script"))
	format.SetLogger(log.Named("format"))
	linker.SetLogger(log.Named("linker"))
	runtime.SetLogger(log.Named("runtime"))
	packager.SetLogger(log.Named("packager"))
	log.Debug("modrun started", zap.String("command", cmd.Name()))
	return nil
}
