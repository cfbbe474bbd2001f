// Package loader type-checks generated bindings with the Go toolchain.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"
)

type Config struct {
	// Additional env vars (e.g. "GOOS=...", "GOARCH=...", "CGO_ENABLED=..." etc.)
	Env []string
	// Additional build flags (e.g. "-tags=...")
	BuildFlags []string
	// GoVersion is the go directive of the scratch module.
	GoVersion string
	// Dir is where the scratch module is created. Defaults to the
	// system temp directory.
	Dir string
}

const DefaultGoVersion = "1.21"

// ModulePath is the module path of the scratch module.
const ModulePath = "pybindgen.local/check"

// writeModule writes a module containing a single package at dir.
func writeModule(dir, goVersion, filename string, src []byte) error {
	mod := new(modfile.File)
	if err := mod.AddModuleStmt(ModulePath); err != nil {
		return err
	}
	if err := mod.AddGoStmt(goVersion); err != nil {
		return err
	}
	data, err := mod.Format()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filename), src, 0o644)
}

func loadPackagesStep(ctx context.Context, c *Config, dir string, mode packages.LoadMode) ([]*packages.Package, error) {
	pc := &packages.Config{
		Context: ctx,
		Mode:    mode,
		Dir:     dir,
		// NOTE: Ensure we always fully clone any slices here!
		Env:        append(append(os.Environ(), "GOTOOLCHAIN=local", "GOWORK=off"), c.Env...),
		BuildFlags: slices.Clone(c.BuildFlags),
	}
	pkgs, err := packages.Load(pc, "./...")
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = multierror.Append(errs, e)
		}
	})
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// Check writes src as the only file of a scratch module and type-checks
// it. The returned package carries syntax and type information. Errors
// reported by the type checker are returned as a *multierror.Error of
// packages.Error values.
func Check(ctx context.Context, c *Config, filename string, src []byte) (*packages.Package, error) {
	if c == nil {
		c = &Config{}
	}
	goVersion := c.GoVersion
	if goVersion == "" {
		goVersion = DefaultGoVersion
	}
	dir, err := os.MkdirTemp(c.Dir, "pybindgen-check-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := writeModule(dir, goVersion, filename, src); err != nil {
		return nil, fmt.Errorf("write scratch module: %w", err)
	}
	pkgs, err := loadPackagesStep(ctx, c, dir, packages.LoadSyntax)
	if err != nil {
		return nil, err
	}
	if len(pkgs) != 1 {
		return nil, errors.New("scratch module: expected exactly one package")
	}
	return pkgs[0], nil
}
