package callgraph

// ExcludeFunc reports whether a callee name should never become an edge,
// typically because it names a language builtin.
type ExcludeFunc func(name string) bool

// PythonBuiltins are the Python builtin functions.
var PythonBuiltins = []string{
	"abs", "all", "any", "ascii", "bin", "bool", "breakpoint", "bytearray", "bytes",
	"callable", "chr", "classmethod", "compile", "complex", "delattr", "dict", "dir",
	"divmod", "enumerate", "eval", "exec", "filter", "float", "format", "frozenset",
	"getattr", "globals", "hasattr", "hash", "help", "hex", "id", "input", "int",
	"isinstance", "issubclass", "iter", "len", "list", "locals", "map", "max",
	"memoryview", "min", "next", "object", "oct", "open", "ord", "pow", "print",
	"property", "range", "repr", "reversed", "round", "set", "setattr", "slice",
	"sorted", "staticmethod", "str", "sum", "super", "tuple", "type", "vars", "zip",
}

// GoBuiltins are the Go predeclared functions.
var GoBuiltins = []string{
	"append", "cap", "clear", "close", "complex", "copy", "delete", "imag", "len",
	"make", "max", "min", "new", "panic", "print", "println", "real", "recover",
}

// NameSet returns an ExcludeFunc matching any of the given names exactly.
func NameSet(names ...[]string) ExcludeFunc {
	set := make(map[string]struct{})
	for _, group := range names {
		for _, n := range group {
			set[n] = struct{}{}
		}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

// DefaultExcluder skips Python and Go builtins.
func DefaultExcluder() ExcludeFunc {
	return NameSet(PythonBuiltins, GoBuiltins)
}

// ExcludeNothing keeps every callee name.
func ExcludeNothing(string) bool { return false }
