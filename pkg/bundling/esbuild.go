package bundling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/hashicorp/go-hclog"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
	"github.com/provide-io/flavor/go/hwpack/pkg/logging"
)

const globalNamespace = "hwpack-global"

const sourceFilter = `\.[cm]?[jt]sx?$`

// EsbuildBundler implements Bundler with esbuild.
type EsbuildBundler struct {
	logger hclog.Logger
}

// NewEsbuildBundler creates an esbuild-backed Bundler.
func NewEsbuildBundler(logger hclog.Logger) *EsbuildBundler {
	return &EsbuildBundler{logger: logging.OrNull(logger).Named("esbuild")}
}

// Bundle implements Bundler. Output is written only after a clean build.
func (b *EsbuildBundler) Bundle(ctx context.Context, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry, err := filepath.Abs(opts.Entry)
	if err != nil {
		return fmt.Errorf("%w: resolving %s: %w", hwerrors.ErrIO, opts.Entry, err)
	}
	outfile, err := filepath.Abs(opts.Outfile)
	if err != nil {
		return fmt.Errorf("%w: resolving %s: %w", hwerrors.ErrIO, opts.Outfile, err)
	}

	build := api.BuildOptions{
		EntryPoints:    []string{entry},
		Outfile:        outfile,
		AbsWorkingDir:  filepath.Dir(entry),
		Bundle:         true,
		Write:          false,
		AllowOverwrite: true,
		Charset:        api.CharsetUTF8,
		LogLevel:       api.LogLevelSilent,
		Loader:         map[string]api.Loader{".json": api.LoaderJSON},
	}

	switch opts.Variant {
	case Standalone:
		build.Format = api.FormatIIFE
		build.Platform = api.PlatformBrowser
	case Module:
		build.Format = api.FormatCommonJS
		build.Platform = api.PlatformNode
	default:
		return fmt.Errorf("%w: unsupported variant %s", hwerrors.ErrBundle, opts.Variant)
	}
	if !opts.InlineDependencies {
		build.Packages = api.PackagesExternal
	}

	if len(opts.Transforms) > 0 {
		build.Plugins = append(build.Plugins, transformPlugin(opts.Transforms))
	}
	if opts.Variant == Standalone && len(opts.Globals) > 0 {
		build.Plugins = append(build.Plugins, globalsPlugin(opts.Globals))
	}

	b.logger.Trace("🔧 esbuild options", "entry", entry, "outfile", outfile, "variant", opts.Variant, "inline", opts.InlineDependencies)
	result := api.Build(build)

	for _, w := range result.Warnings {
		b.logger.Warn("⚠️ Bundler warning", "entry", entry, "message", formatMessage(w))
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			msgs = append(msgs, formatMessage(m))
		}
		return fmt.Errorf("%w: %s: %s", hwerrors.ErrBundle, opts.Entry, strings.Join(msgs, "; "))
	}

	contents, ok := pickOutput(result.OutputFiles, outfile)
	if !ok {
		return fmt.Errorf("%w: %s: bundler produced no output", hwerrors.ErrBundle, opts.Entry)
	}
	if err := writeAtomic(outfile, contents); err != nil {
		return err
	}
	b.logger.Debug("✅ Bundle written", "output", outfile, "size", len(contents))
	return nil
}

func pickOutput(files []api.OutputFile, outfile string) ([]byte, bool) {
	for _, f := range files {
		if f.Path == outfile {
			return f.Contents, true
		}
	}
	if len(files) == 1 {
		return files[0].Contents, true
	}
	return nil, false
}

// writeAtomic replaces path via a temporary sibling so a failed write never
// leaves a truncated bundle.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, fileutil.DirPerms); err != nil {
		return fmt.Errorf("%w: creating %s: %w", hwerrors.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".hwpack-bundle-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %w", hwerrors.ErrIO, dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", hwerrors.ErrIO, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", hwerrors.ErrIO, tmpPath, err)
	}
	if err := os.Chmod(tmpPath, fileutil.FilePerms); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", hwerrors.ErrIO, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", hwerrors.ErrIO, path, err)
	}
	return nil
}

func formatMessage(m api.Message) string {
	text := m.Text
	if m.PluginName != "" {
		text = "[" + m.PluginName + "] " + text
	}
	if m.Location != nil {
		return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, text)
	}
	return text
}

// globalsPlugin resolves each global specifier to a virtual module that
// re-exports the host global, keeping the package out of the bundle.
func globalsPlugin(globals map[string]string) api.Plugin {
	specifiers := make([]string, 0, len(globals))
	for spec := range globals {
		specifiers = append(specifiers, regexp.QuoteMeta(spec))
	}
	sort.Strings(specifiers)
	filter := `^(?:` + strings.Join(specifiers, "|") + `)$`

	return api.Plugin{
		Name: "host-globals",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, Namespace: globalNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: globalNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := fmt.Sprintf("module.exports = %s;", globals[args.Path])
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// transformPlugin runs source transforms over first-party files.
func transformPlugin(transforms []Transform) api.Plugin {
	return api.Plugin{
		Name: "source-transforms",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: sourceFilter, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if strings.Contains(filepath.ToSlash(args.Path), "/node_modules/") {
					return api.OnLoadResult{}, nil
				}

				data, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				source := string(data)
				for _, t := range transforms {
					source, err = t.Apply(args.Path, source)
					if err != nil {
						return api.OnLoadResult{}, fmt.Errorf("%s: %w", t.Name(), err)
					}
				}

				return api.OnLoadResult{
					Contents:   &source,
					ResolveDir: filepath.Dir(args.Path),
					Loader:     loaderFor(args.Path),
				}, nil
			})
		},
	}
}

func loaderFor(path string) api.Loader {
	switch filepath.Ext(path) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}
