package codegen

import (
	"fmt"
	"go/ast"
	"go/token"
	"path"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"
)

type visitFn func(node ast.Node)

func (fn visitFn) Visit(node ast.Node) ast.Visitor {
	fn(node)
	return fn
}

// pruneImports removes the imports of f that no selector expression
// refers to. Imports are assumed to use their default name, which is
// the last path element.
func pruneImports(fset *token.FileSet, f *ast.File) error {
	type importSpec struct {
		name string
		path string
	}

	importsByName := map[string]importSpec{}
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("import path %v: %w", imp.Path.Value, err)
		}
		var name string
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		resolved := name
		if resolved == "" {
			resolved = path.Base(p)
		}
		if _, ok := importsByName[resolved]; ok {
			return fmt.Errorf("duplicate import name %v", resolved)
		}
		importsByName[resolved] = importSpec{name, p}
	}

	used := map[importSpec]struct{}{}
	ast.Walk(visitFn(func(node ast.Node) {
		sel, ok := node.(*ast.SelectorExpr)
		if !ok {
			return
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok {
			return
		}
		if imp, ok := importsByName[id.Name]; ok {
			used[imp] = struct{}{}
		}
	}), f)

	for _, imp := range importsByName {
		if _, ok := used[imp]; ok {
			continue
		}
		if !astutil.DeleteNamedImport(fset, f, imp.name, imp.path) {
			return fmt.Errorf("unable to remove import %v", strconv.Quote(imp.path))
		}
	}
	return nil
}
