package languages

import (
	"sort"
	"strings"
)

// Language describes how to compile and run source code for one supported language.
// Adding a language means adding an entry to the table below; nothing is resolved
// from strings at run time.
type Language struct {
	ID           string
	Name         string
	FileName     string
	Image        string
	Compiled     bool
	CompileArgv  []string
	CompiledFile string
	RunArgv      []string
}

var table = map[string]Language{
	"python": {
		ID:       "python",
		Name:     "Python 3",
		FileName: "main.py",
		Image:    "python:3.11-alpine",
		RunArgv:  []string{"python3", "main.py"},
	},
	"javascript": {
		ID:       "javascript",
		Name:     "Node.js",
		FileName: "main.js",
		Image:    "node:20-alpine",
		RunArgv:  []string{"node", "main.js"},
	},
	"go": {
		ID:       "go",
		Name:     "Go",
		FileName: "main.go",
		Image:    "golang:1.22-alpine",
		RunArgv:  []string{"sh", "-c", "go run main.go"},
	},
	"c": {
		ID:           "c",
		Name:         "C (GCC)",
		FileName:     "main.c",
		Image:        "gcc:13",
		Compiled:     true,
		CompileArgv:  []string{"gcc", "-O2", "-std=c17", "-o", "main", "main.c"},
		CompiledFile: "main",
		RunArgv:      []string{"./main"},
	},
	"cpp": {
		ID:           "cpp",
		Name:         "C++ (GCC)",
		FileName:     "main.cpp",
		Image:        "gcc:13",
		Compiled:     true,
		CompileArgv:  []string{"g++", "-O2", "-std=c++17", "-o", "main", "main.cpp"},
		CompiledFile: "main",
		RunArgv:      []string{"./main"},
	},
}

// Lookup returns the language config for an identifier. Identifiers are
// case-insensitive and surrounding whitespace is ignored.
func Lookup(id string) (Language, bool) {
	lang, ok := table[strings.ToLower(strings.TrimSpace(id))]
	return lang, ok
}

// Supported reports whether the identifier names a supported language.
func Supported(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// IDs returns the supported language identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
