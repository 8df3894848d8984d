package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/provide-io/flavor/go/hwpack/pkg"
	"github.com/provide-io/flavor/go/hwpack/pkg/config"
	"github.com/provide-io/flavor/go/hwpack/pkg/descriptor"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
)

const version = "0.1.0"

type buildOptions struct {
	moduleName     string
	moduleVersion  string
	hardwareConfig string
	blockFile      string
	configFile     string
	versionFlag    bool
}

// builtAt reports when this binary was built: the VCS commit time stamped
// by the toolchain, else the executable's mtime, else now.
func builtAt() time.Time {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key != "vcs.time" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				return t
			}
		}
	}
	// Builds outside a checkout carry no vcs settings.
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime()
		}
	}
	return time.Now()
}

func printVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "hwpack-builder %s\n", version)
	fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", builtAt().UTC().Format(time.RFC3339))
}

func newRootCmd() *cobra.Command {
	opts := &buildOptions{}

	rootCmd := &cobra.Command{
		Use:           "hwpack-builder",
		Short:         "Package hardware modules",
		Long:          `Bundle a hardware module's block and controller scripts and pack them with its descriptor, icon and metadata.json into <build-path>/<module-name>.zip`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.versionFlag {
				printVersion(cmd)
				return nil
			}
			return runBuild(cmd, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.moduleName, "module-name", "n", "", "Module name; also names the archive (required)")
	flags.StringVar(&opts.moduleVersion, "module-version", "", "Module version, semver (required)")
	flags.StringVarP(&opts.hardwareConfig, "hardware-config", "c", "", "Path to the hardware descriptor JSON (required)")
	flags.StringVarP(&opts.blockFile, "block", "b", "", "Path to the block definition script (required)")
	flags.BoolVarP(&opts.versionFlag, "version", "V", false, "Show version information")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&opts.configFile, "config", "", "Config file (defaults to ./hwpack.yaml when present)")
	persistent.String("build-path", "", "Directory receiving the archive (default \"dist\")")
	persistent.String("workspace", "", "Staging directory cleared on every run (defaults to a per-module cache dir)")
	persistent.String("log-level", "", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newVerifyCmd(opts))
	return rootCmd
}

func loadConfig(cmd *cobra.Command, opts *buildOptions, name string) (config.Config, hclog.Logger, error) {
	cfg, used, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.NewLogger(name, cfg.LogLevel, cmd.ErrOrStderr())
	if used != "" {
		logger.Debug("Config loaded", "file", used)
	}
	return cfg, logger, nil
}

func runBuild(cmd *cobra.Command, opts *buildOptions) error {
	cfg, logger, err := loadConfig(cmd, opts, "hwpack-builder")
	if err != nil {
		return err
	}

	req := descriptor.CompressionRequest{
		ModuleName:         opts.moduleName,
		Version:            opts.moduleVersion,
		HardwareConfigPath: opts.hardwareConfig,
		BlockFilePath:      opts.blockFile,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := pkg.BuildModule(ctx, req, cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.ArchivePath, res.Checksum)
	return nil
}

func newVerifyCmd(opts *buildOptions) *cobra.Command {
	var checksum string

	verifyCmd := &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check a built module archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, opts, "hwpack-verify")
			if err != nil {
				return err
			}
			// Without --checksum the digest recorded by the last build is used.
			res, err := pkg.VerifyArchive(args[0], pkg.VerifyOptions{Checksum: checksum, Workspace: cfg.Workspace}, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s@%s\n", res.Path, res.Checksum, res.Manifest.ModuleName, res.Manifest.Version)
			return nil
		},
	}
	verifyCmd.Flags().StringVar(&checksum, "checksum", "", "Expected archive digest (sha256:<hex> or bare hex)")
	return verifyCmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
