package bundling

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform rewrites one source file before its imports are resolved.
type Transform interface {
	Name() string
	Apply(path, source string) (string, error)
}

// GlobalBinding maps import specifiers matching Pattern to a global the host
// runtime defines.
type GlobalBinding struct {
	Pattern *regexp.Regexp
	Global  string
}

// ModuleReplacer rewrites static imports, dynamic imports and require calls
// of host-provided modules into reads of the matching global property. The rewrite
// is textual; import forms it does not recognise are left untouched.
type ModuleReplacer struct {
	name     string
	bindings []GlobalBinding
}

// NewModuleReplacer creates a named ModuleReplacer.
func NewModuleReplacer(name string, bindings ...GlobalBinding) *ModuleReplacer {
	return &ModuleReplacer{name: name, bindings: bindings}
}

// NewBlockModuleReplacer binds the host's block API module to the Entry
// global that block scripts run against.
func NewBlockModuleReplacer() *ModuleReplacer {
	return NewModuleReplacer("block-module-replacer", GlobalBinding{
		Pattern: regexp.MustCompile(`^(?:entry|@entrylabs/entry)$`),
		Global:  "Entry",
	})
}

// NewHardwareModuleReplacer binds any reference to the host's base module
// class, wherever the author's tree placed it, to the BaseModule global.
func NewHardwareModuleReplacer() *ModuleReplacer {
	return NewModuleReplacer("hardware-module-replacer", GlobalBinding{
		Pattern: regexp.MustCompile(`(?:^|/)baseModule(?:\.js)?$`),
		Global:  "BaseModule",
	})
}

// Name implements Transform.
func (r *ModuleReplacer) Name() string {
	return r.name
}

const ident = `[A-Za-z_$][\w$]*`

var (
	// Groups: default binding, namespace or named list following a default,
	// lone namespace, lone named list, specifier.
	staticImport     = regexp.MustCompile(`\bimport\s+(?:(` + ident + `)(?:\s*,\s*(?:\*\s*as\s+(` + ident + `)|\{([^}]*)\}))?|\*\s*as\s+(` + ident + `)|\{([^}]*)\})\s*from\s*['"]([^'"]+)['"][ \t]*;?`)
	sideEffectImport = regexp.MustCompile(`\bimport\s*['"]([^'"]+)['"][ \t]*;?`)
	dynamicImport    = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	requireCall      = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	namedImport      = regexp.MustCompile(`^(` + ident + `)(?:\s+as\s+(` + ident + `))?$`)
)

// Apply implements Transform.
func (r *ModuleReplacer) Apply(path, source string) (string, error) {
	var firstErr error

	out := staticImport.ReplaceAllStringFunc(source, func(stmt string) string {
		m := staticImport.FindStringSubmatch(stmt)
		global, ok := r.lookup(m[6])
		if !ok {
			return stmt
		}
		decls, err := declarations(m, globalRef(global))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: import of %q: %w", path, m[6], err)
			}
			return stmt
		}
		return strings.Join(decls, " ")
	})
	if firstErr != nil {
		return "", firstErr
	}

	// The host has already evaluated its own modules.
	out = sideEffectImport.ReplaceAllStringFunc(out, func(stmt string) string {
		m := sideEffectImport.FindStringSubmatch(stmt)
		if _, ok := r.lookup(m[1]); ok {
			return ""
		}
		return stmt
	})

	out = dynamicImport.ReplaceAllStringFunc(out, func(call string) string {
		m := dynamicImport.FindStringSubmatch(call)
		if global, ok := r.lookup(m[1]); ok {
			return fmt.Sprintf("Promise.resolve(%s)", globalRef(global))
		}
		return call
	})

	out = requireCall.ReplaceAllStringFunc(out, func(call string) string {
		m := requireCall.FindStringSubmatch(call)
		if global, ok := r.lookup(m[1]); ok {
			return globalRef(global)
		}
		return call
	})

	return out, nil
}

func (r *ModuleReplacer) lookup(specifier string) (string, bool) {
	for _, b := range r.bindings {
		if b.Pattern.MatchString(specifier) {
			return b.Global, true
		}
	}
	return "", false
}

// globalRef reads the global through globalThis so a local binding of the
// same name, e.g. const BaseModule = require(...), cannot shadow it.
func globalRef(name string) string {
	return "globalThis." + name
}

// declarations renders one const per binding of a matched static import.
func declarations(m []string, global string) ([]string, error) {
	var decls []string
	if m[1] != "" {
		decls = append(decls, fmt.Sprintf("const %s = %s;", m[1], global))
	}
	for _, ns := range []string{m[2], m[4]} {
		if ns != "" {
			decls = append(decls, fmt.Sprintf("const %s = %s;", ns, global))
		}
	}
	for _, list := range []string{m[3], m[5]} {
		if list == "" {
			continue
		}
		pattern, err := destructure(list)
		if err != nil {
			return nil, err
		}
		decls = append(decls, fmt.Sprintf("const %s = %s;", pattern, global))
	}
	return decls, nil
}

// destructure turns "a, b as c" into "{ a, b: c }".
func destructure(list string) (string, error) {
	var parts []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		m := namedImport.FindStringSubmatch(item)
		if m == nil {
			return "", fmt.Errorf("unsupported named import %q", item)
		}
		if m[2] != "" {
			parts = append(parts, m[1]+": "+m[2])
		} else {
			parts = append(parts, m[1])
		}
	}
	if len(parts) == 0 {
		return "{}", nil
	}
	return "{ " + strings.Join(parts, ", ") + " }", nil
}
