package codegen_test

import (
	"fmt"

	"github.com/refaktor/pybindgen/codegen"
)

func ExampleCodeBuilder() {
	var cb codegen.CodeBuilder
	cb.Linef(`package demo`)
	cb.Linef(``)
	cb.Doc("Config holds settings.\n\n    More details.\n    ")
	cb.Linef(`type Config struct {`)
	cb.Indent++
	cb.Linef(`h Object`)
	cb.Indent--
	cb.Linef(`}`)
	cb.Linef(``)
	cb.Linef(`type Object any`)

	code, err := cb.FmtString()
	if err != nil {
		panic(err)
	}
	fmt.Print(code)
	// Output:
	// package demo
	//
	// // Config holds settings.
	// //
	// // More details.
	// type Config struct {
	// 	h Object
	// }
	//
	// type Object any
}
