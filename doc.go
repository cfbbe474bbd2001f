/*
Package pybindgen generates Go bindings for Python modules.

Given one or more entry module paths it walks the module graph through a
[bridge.Bridge], maps Python type annotations to Go types and renders a
single Go source file with one wrapper per function, class, property and
constant. The generated code talks to the Python runtime through a
user-supplied bridge set with SetBridge.

# Architecture pipeline (for developers)

Each element in the pipeline has distinct sub-packages that do a specific part. These are then "glued" together in the [Generate] function.
 1. [config]: Parse user-supplied 'pybindgen.toml' and binding list files
 2. [introspect]: Import the entry modules through a bridge and collect the raw descriptors of everything reachable
 3. [typemap]: Parse annotation text into type descriptors
 4. [ir]: Build the symbol table, apply rules and binding list, resolve bases and assign collision-free identifiers
 5. [codegen]: Render the frozen table as one formatted Go file
 6. [loader]: Optionally type-check the result
*/
package pybindgen
