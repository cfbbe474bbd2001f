// Package config loads pybindgen.toml files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/gobwas/glob"
	"github.com/pelletier/go-toml/v2"
)

// Glob is a module path pattern. "*" matches within one path element,
// "**" across elements.
type Glob struct {
	glob.Glob
	pattern string
}

func MustCompileGlob(pattern string) Glob {
	var g Glob
	if err := g.UnmarshalText([]byte(pattern)); err != nil {
		panic(err)
	}
	return g
}

func (g Glob) String() string {
	return g.pattern
}

func (g Glob) MarshalText() ([]byte, error) {
	return []byte(g.pattern), nil
}

func (g *Glob) UnmarshalText(text []byte) error {
	compiled, err := glob.Compile(string(text), '.')
	if err != nil {
		return fmt.Errorf("module pattern %q: %w", text, err)
	}
	g.Glob = compiled
	g.pattern = string(text)
	return nil
}

type Rule struct {
	Select struct {
		Module *Glob          `toml:"module"`
		Class  *regexp.Regexp `toml:"class"`
		Name   *regexp.Regexp `toml:"name"`
		Type   string         `toml:"type"`
	} `toml:"select"`
	Actions struct {
		Include  *bool  `toml:"include"`
		Rename   string `toml:"rename"`
		ToCasing string `toml:"to-casing"`
	} `toml:"action"`
}

const (
	BridgePython = "python"
	BridgeStub   = "stub"
)

type Config struct {
	Imports []string `toml:"imports"`
	// Modules are the entry modules.
	Modules []string `toml:"modules"`
	// Package is the generated package name.
	Package string `toml:"package"`
	Output  string `toml:"output"`
	// Recurse into submodules; defaults to true.
	Recurse        *bool    `toml:"recurse"`
	IncludePrivate bool     `toml:"include-private"`
	ExtensionTypes []string `toml:"extension-types"`
	PreserveNames  bool     `toml:"preserve-names"`
	Jobs           int      `toml:"jobs"`
	Bridge         string   `toml:"bridge"`
	// Python is the interpreter used by the python bridge.
	Python string `toml:"python"`
	// StubPaths are the source roots searched by the stub bridge.
	StubPaths      []string `toml:"stub-paths"`
	IncludeModules []Glob   `toml:"include-modules"`
	ExcludeModules []Glob   `toml:"exclude-modules"`
	BindingList    string   `toml:"binding-list"`
	Snapshot       string   `toml:"snapshot"`
	Rules          []Rule   `toml:"rule"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	recurse := true
	return &Config{
		Recurse: &recurse,
		Bridge:  BridgePython,
		Python:  "python3",
	}
}

type Error struct {
	filePath string
	err      error  // short, single-line error
	str      string // full, multi-line error string, or err string, if none
}

// Error returns a short error message.
func (e *Error) Error() string {
	return e.filePath + ": " + e.err.Error()
}

// String returns the full multi-line error string.
func (e *Error) String() string {
	if e.str != "" {
		return "Error in file " + strconv.Quote(e.filePath) + ":\n" + e.str
	} else {
		return e.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.err
}

// Load reads the file at path, merges its imports and fills in
// defaults. Imports are resolved relative to the importing file.
func Load(path string) (*Config, error) {
	c, err := load(path, nil)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(c, Default()); err != nil {
		return nil, &Error{filePath: path, err: err}
	}
	if err := c.Validate(); err != nil {
		return nil, &Error{filePath: path, err: err}
	}
	return c, nil
}

func load(path string, stack []string) (_ *Config, err error) {
	defer func() {
		if err != nil {
			if cErr := (&Error{}); errors.As(err, &cErr) {
				return
			}
			if tErr := (&toml.DecodeError{}); errors.As(err, &tErr) {
				err = &Error{filePath: path, err: err, str: tErr.String()}
			} else if tErr := (&toml.StrictMissingError{}); errors.As(err, &tErr) {
				err = &Error{filePath: path, err: err, str: tErr.String()}
			} else {
				err = &Error{filePath: path, err: err}
			}
		}
	}()

	if slices.Contains(stack, path) {
		return nil, fmt.Errorf("import cycle: %v", strings.Join(append(stack, path), " -> "))
	}
	stack = append(stack, path)

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &Config{}
	err = toml.NewDecoder(bytes.NewReader(file)).
		DisallowUnknownFields().
		Decode(c)
	if err != nil {
		return nil, err
	}

	var importedCs []*Config // collect imported files first so their imports don't leak into our file's imports
	for _, imp := range c.Imports {
		if !filepath.IsAbs(imp) {
			imp = filepath.Join(filepath.Dir(path), imp)
		}
		newC, err := load(imp, stack)
		if err != nil {
			return nil, err
		}
		importedCs = append(importedCs, newC)
	}
	for _, newC := range importedCs {
		if err := mergo.Merge(c, newC, mergo.WithAppendSlice); err != nil {
			return nil, err
		}
	}

	return c, nil
}

var (
	validCasings = []string{"camel", "lower-camel", "snake", "kebab"}
	validTypes   = []string{"func", "method", "constructor", "property", "class", "constant", "module"}
)

func (c *Config) Validate() error {
	switch c.Bridge {
	case "", BridgePython, BridgeStub:
	default:
		return fmt.Errorf("unknown bridge %q", c.Bridge)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative")
	}
	for _, ext := range c.ExtensionTypes {
		if ext != "numpy" {
			return fmt.Errorf("unknown extension type %q", ext)
		}
	}
	for i, r := range c.Rules {
		if r.Select.Type != "" && !slices.Contains(validTypes, strings.ToLower(r.Select.Type)) {
			return fmt.Errorf("rule %v: select: unknown symbol type: %v", i+1, r.Select.Type)
		}
		if r.Actions.ToCasing != "" && !slices.Contains(validCasings, r.Actions.ToCasing) {
			return fmt.Errorf("rule %v: action: unknown casing: %v", i+1, r.Actions.ToCasing)
		}
	}
	return nil
}

// ModuleFilter reports whether a discovered module may be walked: it
// must match one of IncludeModules, if any, and none of
// ExcludeModules.
func (c *Config) ModuleFilter() func(path string) bool {
	return func(path string) bool {
		if len(c.IncludeModules) > 0 && !slices.ContainsFunc(c.IncludeModules, func(g Glob) bool { return g.Match(path) }) {
			return false
		}
		return !slices.ContainsFunc(c.ExcludeModules, func(g Glob) bool { return g.Match(path) })
	}
}
