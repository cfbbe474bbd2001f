package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/digraphutils"
	"github.com/refaktor/pybindgen/introspect"
)

var graphCmd = &cobra.Command{
	Use:   "graph [module...]",
	Short: "Print the module graph in graphviz DOT format",
	Long: `Walk the entry modules and print the submodule tree as graphviz DOT code.
With --classes, classes and their base classes are included.`,
	RunE: runGraph,
}

func init() {
	f := graphCmd.Flags()
	f.StringP("config", "c", "", "configuration file (default "+DefaultConfigFile+" if present)")
	f.StringSliceP("module", "m", nil, "entry module (repeatable)")
	f.Bool("recurse", true, "walk submodules")
	f.Bool("private", false, "walk private submodules and classes")
	f.String("bridge", "", "how modules are inspected (python|stub)")
	f.String("python", "", "Python interpreter")
	f.StringSlice("stub-path", nil, "source root searched for modules (repeatable)")
	f.String("replay", "", "replay a snapshot instead of inspecting modules")
	f.Bool("classes", false, "include classes and inheritance")
}

type graphNode struct {
	path  string
	class bool
}

// moduleGraph returns the nodes reachable from the entries of res and
// their edges. Modules point to submodules and classes defined in them,
// classes to their bases.
func moduleGraph(res *introspect.Result, classes bool) ([]graphNode, func(graphNode) []graphNode) {
	edges := map[graphNode][]graphNode{}
	for mod, subs := range res.Submodules {
		n := graphNode{path: mod}
		for _, sub := range subs {
			edges[n] = append(edges[n], graphNode{path: sub})
		}
	}
	if classes {
		for _, it := range res.Items {
			if it.Desc.Kind != bridge.KindClass || it.Origin() != it.Path {
				continue
			}
			n := graphNode{path: it.Path, class: true}
			parent := graphNode{path: it.Module}
			if it.Owner != "" {
				parent = graphNode{path: it.Owner, class: true}
			}
			edges[parent] = append(edges[parent], n)
			for _, base := range it.Desc.Bases {
				edges[n] = append(edges[n], graphNode{path: base, class: true})
			}
		}
	}
	edgeFn := func(n graphNode) []graphNode { return edges[n] }

	var roots []graphNode
	for _, e := range res.Entries {
		roots = append(roots, graphNode{path: e})
	}
	return digraphutils.ReachableOrdered(roots, edgeFn), edgeFn
}

func writeGraph(w io.Writer, res *introspect.Result, classes bool) error {
	nodes, edges := moduleGraph(res, classes)
	walked := map[string]bool{}
	for _, m := range res.Modules {
		walked[m] = true
	}
	code := digraphutils.DOTCode(
		nodes,
		edges,
		"modules",
		`node [shape=box]`,
		func(n graphNode) string {
			attrs := []string{"label=" + strconv.Quote(n.path)}
			switch {
			case n.class:
				attrs = append(attrs, "shape=ellipse")
			case !walked[n.path]:
				attrs = append(attrs, "style=dashed")
			}
			return "[" + strings.Join(attrs, ", ") + "]"
		},
	)
	_, err := w.Write(code)
	return err
}

func runGraph(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, args, c); err != nil {
		return err
	}
	s, err := openSession(cmd.Context(), c, "")
	if err != nil {
		return err
	}
	defer s.close(false)

	res, err := introspect.Walk(s, c.Modules, introspect.Options{
		Recurse:        c.Recurse == nil || *c.Recurse,
		IncludePrivate: c.IncludePrivate,
		ModuleFilter:   c.ModuleFilter(),
	})
	if err != nil {
		return err
	}
	classes, _ := cmd.Flags().GetBool("classes")
	if err := writeGraph(cmd.OutOrStdout(), res, classes); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}
