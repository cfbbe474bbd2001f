// Package rules applies the [[rule]] entries of a configuration to the
// symbols of a module graph.
package rules

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/refaktor/pybindgen/config"
)

type SymbolType int

const (
	// Module-level function
	SymbolFunc SymbolType = iota
	// Instance, class or static method
	SymbolMethod
	// __init__
	SymbolConstructor
	SymbolProperty
	SymbolClass
	SymbolConstant
	SymbolModule
)

var symbolTypeNames = [...]string{
	SymbolFunc:        "Func",
	SymbolMethod:      "Method",
	SymbolConstructor: "Constructor",
	SymbolProperty:    "Property",
	SymbolClass:       "Class",
	SymbolConstant:    "Constant",
	SymbolModule:      "Module",
}

func (sym SymbolType) String() string {
	if sym < 0 || int(sym) >= len(symbolTypeNames) {
		panic("invalid symbol")
	}
	return symbolTypeNames[sym]
}

func SymbolTypeFromString(s string) (SymbolType, bool) {
	for i, name := range symbolTypeNames {
		if strings.EqualFold(s, name) {
			return SymbolType(i), true
		}
	}
	return -1, false
}

type Symbol struct {
	// Path is the qualified path, which identifies the symbol.
	Path string
	// Module the symbol belongs to.
	Module string
	// Class is the qualified name of the owning class within Module,
	// or "".
	Class string
	// Name is the initial binding name.
	Name string
	Type SymbolType
}

// Execute runs the rules in order over syms. Return value names maps
// each symbol's path to its final name, while included is whether the
// symbol should be included. A rule's rename may refer to capture groups
// of its class and name selectors with \1 to \9, numbered across both.
func Execute(rules []config.Rule, syms []Symbol) (names map[string]string, included map[string]bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("execute rules: %w", err)
		}
	}()

	names = map[string]string{}
	included = map[string]bool{}
	for _, sym := range syms {
		if _, ok := names[sym.Path]; ok {
			return nil, nil, fmt.Errorf("duplicate %v symbol: %v", sym.Type, sym.Path)
		}
		names[sym.Path] = sym.Name
		included[sym.Path] = true
	}

	// Backrefs represents the '\1', '\2' etc.,
	// which are created by making a capture
	// group in the class and/or name selector.
	var backrefs [][]byte

	for ruleIdx, rule := range rules {
		var selType SymbolType = -1
		if rule.Select.Type != "" {
			t, ok := SymbolTypeFromString(rule.Select.Type)
			if !ok {
				return nil, nil, fmt.Errorf("rule %v: select: unknown symbol type: %v", ruleIdx+1, rule.Select.Type)
			}
			selType = t
		}

		for _, sym := range syms {
			backrefs = backrefs[:0]
			if selType != -1 && sym.Type != selType {
				continue
			}
			if rule.Select.Module != nil && !rule.Select.Module.Match(sym.Module) {
				continue
			}
			if rule.Select.Class != nil {
				m := rule.Select.Class.FindSubmatch([]byte(sym.Class))
				if len(m) == 0 || len(m[0]) != len(sym.Class) {
					continue
				}
				backrefs = append(backrefs, m[1:]...)
			}
			if rule.Select.Name != nil {
				name := names[sym.Path]
				m := rule.Select.Name.FindSubmatch([]byte(name))
				if len(m) == 0 || len(m[0]) != len(name) {
					continue
				}
				backrefs = append(backrefs, m[1:]...)
			}

			if rule.Actions.Rename != "" {
				oldnew := [2 * 9]string{
					`\1`, "",
					`\2`, "",
					`\3`, "",
					`\4`, "",
					`\5`, "",
					`\6`, "",
					`\7`, "",
					`\8`, "",
					`\9`, "",
				}
				for i := range min(len(backrefs), 9) {
					oldnew[2*i+1] = string(backrefs[i])
				}
				names[sym.Path] = strings.NewReplacer(oldnew[:]...).
					Replace(rule.Actions.Rename)
			}

			if rule.Actions.Include != nil {
				included[sym.Path] = *rule.Actions.Include
			}

			if rule.Actions.ToCasing != "" {
				name := names[sym.Path]
				switch rule.Actions.ToCasing {
				case "kebab":
					name = strcase.ToKebab(name)
				case "camel":
					name = strcase.ToCamel(name)
				case "lower-camel":
					name = strcase.ToLowerCamel(name)
				case "snake":
					name = strcase.ToSnake(name)
				default:
					return nil, nil, fmt.Errorf("rule %v: action: unknown casing: %v", ruleIdx+1, rule.Actions.ToCasing)
				}
				names[sym.Path] = name
			}
		}
	}

	return
}
