package codegen

import (
	_ "embed"
	"slices"
	"strings"
	"text/template"

	"github.com/refaktor/pybindgen/ir"
)

//go:embed prelude.go.tmpl
var preludeSrc string

var preludeTemplate = template.Must(template.New("prelude.go.tmpl").Parse(preludeSrc))

type preludeData struct {
	Package string
	Modules string
}

func renderPrelude(pkg string, modules []string) (string, error) {
	var b strings.Builder
	err := preludeTemplate.Execute(&b, preludeData{
		Package: pkg,
		Modules: strings.Join(modules, ", "),
	})
	return b.String(), err
}

// Package-level identifiers declared by the prelude and the imports it
// may use.
var preludeNames = []string{
	"Object", "Bridge", "Wrapper", "ErrNoBridge", "SetBridge",
	"bridgeMu", "activeBridge", "getBridge", "omitted", "unwrap",
	"deref", "opt", "optObject", "optSlice", "optMap",
	"positional", "variadic", "keywords", "mergeKeywords",
	"lookup", "callObject", "callFunc", "callMethod", "getAttr", "setAttr",
	"extract", "extractOptional", "discard",
	"errors", "math", "sync",
	"init",
}

// Receiver name of generated methods.
const recv = "o"

// NameOptions returns the naming options matching the generated code.
func NameOptions(preserve bool) ir.NameOptions {
	return ir.NameOptions{
		Preserve:       preserve,
		Reserved:       append(slices.Clip(preludeNames), recv),
		MemberReserved: []string{"h", "Handle", "SetHandle"},
		LocalReserved:  []string{recv},
	}
}
