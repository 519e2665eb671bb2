package brain

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
)

// Runtime embeds a Risor VM and runs brain scripts. Scripts receive the
// call being replaced and answer with Python source through emit.
type Runtime struct {
	dir    string
	fsys   fs.FS
	logger *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts from fsys instead of from disk. The Risor
// importer resolves import statements against the same filesystem.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeDir loads scripts from a directory on disk.
func WithRuntimeDir(dir string) RuntimeOption {
	return func(r *Runtime) {
		r.dir = dir
	}
}

// WithRuntimeLogger sets the logger that receives script log calls.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime. Without a filesystem or directory only
// RunSource is usable.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Input is what a script sees of the call it replaces.
type Input struct {
	// Typename is the first positional argument when it is a string.
	Typename string
	// Fields is the second argument (or the field_names/names keyword)
	// split into names: a string is split on commas and whitespace, a
	// list or tuple of strings is taken as is.
	Fields []string
	// Args holds every positional argument as a plain value: string,
	// int64, float64, bool, nil or []any. Arguments that could not be
	// inferred are nil.
	Args []any
	// Kwargs holds keyword arguments the same way.
	Kwargs map[string]any
}

// RunScript loads and runs the script at path and returns the emitted
// source.
func (r *Runtime) RunScript(ctx context.Context, path string, in Input) (string, error) {
	src, err := r.LoadScript(path)
	if err != nil {
		return "", err
	}
	return r.eval(ctx, src, path, in)
}

// RunSource runs Risor source directly. Useful for testing without script
// files.
func (r *Runtime) RunSource(ctx context.Context, source string, in Input) (string, error) {
	return r.eval(ctx, source, "<inline>", in)
}

func (r *Runtime) eval(ctx context.Context, source, label string, in Input) (string, error) {
	out := &emitter{}
	globals := r.buildGlobals(label, out, in)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(risor.NewConfig(opts...).GlobalNames()); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	r.logger.Debug("running brain", "brain", label, "typename", in.Typename, "fields", len(in.Fields))
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return "", fmt.Errorf("brain: script %s: %w", label, err)
	}
	return out.String(), nil
}

// buildImporter returns a Risor importer for the Runtime's script source,
// or nil when neither a filesystem nor a directory is configured.
// globalNames must cover Risor's builtins as well as the host globals, or
// imported modules fail to compile.
func (r *Runtime) buildImporter(globalNames []string) importer.Importer {
	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.dir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.dir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("brain: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.dir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("brain: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the globals exposed to a brain script.
func (r *Runtime) buildGlobals(label string, out *emitter, in Input) map[string]any {
	fields := make([]object.Object, len(in.Fields))
	for i, f := range in.Fields {
		fields[i] = object.NewString(f)
	}
	args := make([]object.Object, len(in.Args))
	for i, a := range in.Args {
		args[i] = toObject(a)
	}
	kwargs := make(map[string]object.Object, len(in.Kwargs))
	for k, v := range in.Kwargs {
		kwargs[k] = toObject(v)
	}
	return map[string]any{
		"emit":        makeEmitFn(out),
		"log":         makeLogModule(r.logger.With("brain", label)),
		"valid_field": makeValidFieldFn(),
		"typename":    object.NewString(in.Typename),
		"fields":      object.NewList(fields),
		"args":        object.NewList(args),
		"kwargs":      object.NewMap(kwargs),
	}
}
