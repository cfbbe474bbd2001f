package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/refaktor/pybindgen/config"
	"github.com/refaktor/pybindgen/ir"
)

var initCmd = &cobra.Command{
	Use:   "init <python module>",
	Short: "Set up a Go package that generates bindings with go generate",
	Long: `Create a package directory in the current Go module containing a
pybindgen.toml for the given Python module and a gen.go with a go:generate
directive. Run "go generate ./..." afterwards to generate the bindings.`,
	Example: `  pybindgen init numpy
  	Set up bindings for numpy in ./numpy
  pybindgen init mypkg.sub --name sub --bridge stub --stub-path ../python`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	f := initCmd.Flags()
	f.String("name", "", "package / directory name (default: last element of the module path)")
	f.String("bridge", config.BridgePython, "how modules are inspected (python|stub)")
	f.StringSlice("stub-path", nil, "source root searched for modules (repeatable)")
}

type initOptions struct {
	Module    string
	Name      string
	Bridge    string
	StubPaths []string
}

// initConfig is the configuration file written by init.
type initConfig struct {
	Modules     []string `toml:"modules"`
	Package     string   `toml:"package"`
	Output      string   `toml:"output"`
	Bridge      string   `toml:"bridge"`
	StubPaths   []string `toml:"stub-paths,omitempty"`
	BindingList string   `toml:"binding-list"`
}

const genGoTemplate = `// Package %[1]v binds the Python module %[2]v.
package %[1]v

//go:generate go run github.com/refaktor/pybindgen/cmd/pybindgen generate -c %[3]v
`

func validName(name string) bool {
	return name != "" && !strings.ContainsFunc(name, func(r rune) bool {
		ok := (r >= 'A' && r <= 'Z') ||
			(r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '_'
		return !ok
	})
}

// initProject sets up the generator package in root, which must hold a
// go.mod. It returns the created files and the package import path.
func initProject(root string, opts initOptions) (files []string, pkgPath string, err error) {
	if opts.Name == "" {
		last := opts.Module[strings.LastIndex(opts.Module, ".")+1:]
		opts.Name = ir.Escape(ir.Sanitize(strings.ToLower(last), false))
	}
	if !validName(opts.Name) {
		return nil, "", errors.New("name can only contain a-z, A-Z, 0-9 and _")
	}
	dir := filepath.Join(root, opts.Name)
	if _, err := os.Lstat(dir); err == nil {
		return nil, "", fmt.Errorf("%q already exists; use --name to choose a different package directory", opts.Name)
	}

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", errors.New(`cannot find go.mod in current directory; use "go mod init" to initialize a new Go project`)
		}
		return nil, "", err
	}
	mod, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, "", fmt.Errorf("parse go.mod: %w", err)
	}
	if mod.Module == nil {
		return nil, "", errors.New("expected module in go.mod")
	}
	pkgPath = mod.Module.Mod.Path + "/" + opts.Name
	if err := module.CheckImportPath(pkgPath); err != nil {
		return nil, "", err
	}

	cfg, err := toml.Marshal(initConfig{
		Modules:     []string{opts.Module},
		Package:     opts.Name,
		Output:      "bindings.go",
		Bridge:      opts.Bridge,
		StubPaths:   opts.StubPaths,
		BindingList: "bindings.txt",
	})
	if err != nil {
		return nil, "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	write := func(name string, content []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o666); err != nil {
			return err
		}
		files = append(files, path)
		return nil
	}
	if err := write(DefaultConfigFile, cfg); err != nil {
		return nil, "", err
	}
	if err := write("gen.go", fmt.Appendf(nil, genGoTemplate, opts.Name, opts.Module, DefaultConfigFile)); err != nil {
		return nil, "", err
	}
	return files, pkgPath, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	opts := initOptions{Module: args[0]}
	f := cmd.Flags()
	opts.Name, _ = f.GetString("name")
	opts.Bridge, _ = f.GetString("bridge")
	opts.StubPaths, _ = f.GetStringSlice("stub-path")
	if opts.Bridge != config.BridgePython && opts.Bridge != config.BridgeStub {
		return fmt.Errorf("unknown bridge %q", opts.Bridge)
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	files, pkgPath, err := initProject(wd, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, file := range files {
		rel, err := filepath.Rel(wd, file)
		if err != nil {
			rel = file
		}
		fmt.Fprintln(out, "created", rel)
	}
	fmt.Fprintf(out, "Successfully set up pybindgen for %v in %v!\n", opts.Module, pkgPath)
	fmt.Fprintln(out, `You may now run "go mod tidy && go generate ./..." to generate the bindings.`)
	return nil
}
