// Package config loads builder settings from defaults, an optional YAML
// file, HWPACK_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/provide-io/flavor/go/hwpack/internal/workspace"
	"github.com/provide-io/flavor/go/hwpack/pkg/bundling"
	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/hardware"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
	"github.com/provide-io/flavor/go/hwpack/pkg/packager"
)

const (
	// EnvPrefix prefixes every environment override, e.g. HWPACK_BUILD_PATH.
	EnvPrefix = "HWPACK"
	// FileName is the config file looked up in the working directory.
	FileName = "hwpack"
)

// Config is the resolved builder configuration.
type Config struct {
	BuildPath          string       `mapstructure:"build_path"`
	WorkspacePath      string       `mapstructure:"workspace_path"`
	ControllerExt      string       `mapstructure:"controller_ext"`
	HardwareCompressor string       `mapstructure:"hardware_compressor"`
	Include            []string     `mapstructure:"include"`
	Globals            []HostGlobal `mapstructure:"globals"`
	LogLevel           string       `mapstructure:"log_level"`
}

// HostGlobal binds an import specifier to a global the host defines. Globals
// are configured as a list of pairs because config keys are case-folded and
// split on dots, which would corrupt specifiers such as "@Scope/pkg" or
// "lodash.debounce".
type HostGlobal struct {
	Specifier string `mapstructure:"specifier"`
	Global    string `mapstructure:"global"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BuildPath:          "dist",
		ControllerExt:      ".js",
		HardwareCompressor: hardware.DefaultCompressor,
		Globals:            hostGlobals(bundling.DefaultGlobals()),
		LogLevel:           logging.GetLogLevel(),
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"build-path": "build_path",
	"workspace":  "workspace_path",
	"log-level":  "log_level",
}

// Load resolves the configuration. configFile, when set, must exist;
// otherwise hwpack.yaml in the working directory is read if present.
// flags may be nil. The returned string is the config file used, if any.
func Load(configFile string, flags *pflag.FlagSet) (Config, string, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("build_path", defaults.BuildPath)
	v.SetDefault("workspace_path", defaults.WorkspacePath)
	v.SetDefault("controller_ext", defaults.ControllerExt)
	v.SetDefault("hardware_compressor", defaults.HardwareCompressor)
	v.SetDefault("include", []string{})
	v.SetDefault("globals", defaults.Globals)
	v.SetDefault("log_level", defaults.LogLevel)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("%w: reading config %s: %w", hwerrors.ErrParse, configFile, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, "", fmt.Errorf("%w: reading config: %w", hwerrors.ErrParse, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, "", fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("%w: decoding config: %w", hwerrors.ErrParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate checks settings that do not depend on the module being built.
func (c Config) Validate() error {
	var problems []string
	if c.BuildPath == "" {
		problems = append(problems, "build_path is empty")
	}
	if c.ControllerExt == "" {
		problems = append(problems, "controller_ext is empty")
	}
	if !slices.Contains(hardware.Names(), c.HardwareCompressor) {
		problems = append(problems, fmt.Sprintf("hardware_compressor %q is not one of %s", c.HardwareCompressor, strings.Join(hardware.Names(), ", ")))
	}
	if !logging.ValidLevel(c.LogLevel) {
		problems = append(problems, fmt.Sprintf("log_level %q is unknown", c.LogLevel))
	}
	seen := make(map[string]bool, len(c.Globals))
	for _, g := range c.Globals {
		switch {
		case g.Specifier == "" || g.Global == "":
			problems = append(problems, fmt.Sprintf("globals entry %q: %q is incomplete", g.Specifier, g.Global))
		case seen[g.Specifier]:
			problems = append(problems, fmt.Sprintf("globals entry %q is repeated", g.Specifier))
		}
		seen[g.Specifier] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", hwerrors.ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// GlobalMap returns the host globals keyed by specifier.
func (c Config) GlobalMap() map[string]string {
	m := make(map[string]string, len(c.Globals))
	for _, g := range c.Globals {
		m[g.Specifier] = g.Global
	}
	return m
}

func hostGlobals(m map[string]string) []HostGlobal {
	out := make([]HostGlobal, 0, len(m))
	for specifier, global := range m {
		out = append(out, HostGlobal{Specifier: specifier, Global: global})
	}
	slices.SortFunc(out, func(a, b HostGlobal) int { return strings.Compare(a.Specifier, b.Specifier) })
	return out
}

// Workspace returns the workspace for moduleName: the configured path, or
// the per-module default under the cache root.
func (c Config) Workspace(moduleName string) string {
	if c.WorkspacePath != "" {
		return c.WorkspacePath
	}
	return workspace.DefaultPath(moduleName)
}

// PackagerConfig returns the packager settings for moduleName.
func (c Config) PackagerConfig(moduleName string) (packager.Config, error) {
	pc := packager.Config{
		BuildPath:     c.BuildPath,
		WorkspacePath: c.Workspace(moduleName),
		ControllerExt: c.ControllerExt,
	}
	if err := pc.Validate(); err != nil {
		return packager.Config{}, fmt.Errorf("%w: %w", hwerrors.ErrInvalidRequest, err)
	}
	return pc, nil
}
