package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/refaktor/pybindgen"
	"github.com/refaktor/pybindgen/config"
)

// DefaultConfigFile is read when no --config is given and it exists.
const DefaultConfigFile = "pybindgen.toml"

var generateCmd = &cobra.Command{
	Use:   "generate [module...]",
	Short: "Generate bindings for Python modules",
	Long: `Generate bindings for the given entry modules, or the modules named in the
configuration file. The bindings are written to stdout unless an output
file is given.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringP("config", "c", "", "configuration file (default "+DefaultConfigFile+" if present)")
	f.StringSliceP("module", "m", nil, "entry module (repeatable)")
	f.StringP("output", "o", "", "output file, or - for stdout")
	f.StringP("package", "p", "", "Go package name")
	f.Bool("recurse", true, "walk submodules")
	f.Bool("private", false, "bind private members and ignore __all__")
	f.StringSlice("ext", nil, "extension types to recognize (numpy)")
	f.Bool("preserve-names", false, "keep Python names instead of CamelCase")
	f.IntP("jobs", "j", 0, "number of module sections rendered concurrently")
	f.String("bridge", "", "how modules are inspected (python|stub)")
	f.String("python", "", "Python interpreter")
	f.StringSlice("stub-path", nil, "source root searched for modules (repeatable)")
	f.String("binding-list", "", "binding list file, rewritten after each run")
	f.String("record", "", "record the bridge responses to a .json or .msgpack snapshot")
	f.String("replay", "", "replay a snapshot instead of inspecting modules")
	f.Bool("verify", false, "type-check the generated code with the go command")
	f.Bool("stats", false, "print statistics to stderr")
}

// loadConfig reads path, or DefaultConfigFile if path is empty and the
// file exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return config.Default(), nil
		}
		path = DefaultConfigFile
	}
	c, err := config.Load(path)
	if err != nil {
		if cErr := (&config.Error{}); errors.As(err, &cErr) {
			return nil, errors.New(cErr.String())
		}
		return nil, err
	}
	return c, nil
}

// applyFlags overrides c with the flags set on the command line.
func applyFlags(cmd *cobra.Command, args []string, c *config.Config) error {
	f := cmd.Flags()
	var err error
	str := func(name string, dst *string) {
		if err == nil && f.Changed(name) {
			*dst, err = f.GetString(name)
		}
	}
	strs := func(name string, dst *[]string) {
		if err == nil && f.Changed(name) {
			*dst, err = f.GetStringSlice(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && f.Changed(name) {
			*dst, err = f.GetBool(name)
		}
	}

	strs("module", &c.Modules)
	str("output", &c.Output)
	str("package", &c.Package)
	boolean("private", &c.IncludePrivate)
	strs("ext", &c.ExtensionTypes)
	boolean("preserve-names", &c.PreserveNames)
	str("bridge", &c.Bridge)
	str("python", &c.Python)
	strs("stub-path", &c.StubPaths)
	str("binding-list", &c.BindingList)
	str("replay", &c.Snapshot)
	if err == nil && f.Changed("recurse") {
		var recurse bool
		recurse, err = f.GetBool("recurse")
		c.Recurse = &recurse
	}
	if err == nil && f.Changed("jobs") {
		c.Jobs, err = f.GetInt("jobs")
	}
	if err != nil {
		return err
	}
	c.Modules = append(c.Modules, args...)
	if len(c.Modules) == 0 {
		return errors.New("no entry modules (use --module or the modules key of the configuration)")
	}
	return c.Validate()
}

func loadBindingList(path string) (*config.BindingList, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return config.NewBindingList(), nil
	}
	return config.LoadBindingListFromFile(path)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, args, c); err != nil {
		return err
	}
	color, err := useColor(cmd, os.Stderr)
	if err != nil {
		return err
	}
	log := &pybindgen.Logger{Writer: os.Stderr, Prefix: "pybindgen", Color: color}

	bl, err := loadBindingList(c.BindingList)
	if err != nil {
		return err
	}
	opts := pybindgen.OptionsFromConfig(c)
	opts.BindingList = bl
	opts.Logger = log
	opts.Verify, _ = cmd.Flags().GetBool("verify")

	record, _ := cmd.Flags().GetString("record")
	s, err := openSession(cmd.Context(), c, record)
	if err != nil {
		return err
	}
	res, err := pybindgen.Generate(cmd.Context(), s, opts)
	if closeErr := s.close(err == nil); closeErr != nil {
		log.Warnf("%v", closeErr)
	}
	if err != nil {
		return err
	}

	if bl != nil {
		if err := bl.SaveToFile(c.BindingList, res.Bindings); err != nil {
			return fmt.Errorf("save binding list: %w", err)
		}
	}
	if c.Output == "" || c.Output == "-" {
		if _, err := cmd.OutOrStdout().Write(res.Source); err != nil {
			return err
		}
	} else if err := res.WriteFile(c.Output); err != nil {
		return err
	}

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		printStats(cmd.ErrOrStderr(), res)
	}
	return nil
}
