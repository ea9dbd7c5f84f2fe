package vault

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// osFileCalls are os functions that touch the filesystem. Store packages must
// go through their afero.Fs instead so tests can swap in memory filesystems.
var osFileCalls = map[string]struct{}{
	"Chtimes":    {},
	"Create":     {},
	"CreateTemp": {},
	"Lstat":      {},
	"Mkdir":      {},
	"MkdirAll":   {},
	"MkdirTemp":  {},
	"Open":       {},
	"OpenFile":   {},
	"ReadDir":    {},
	"ReadFile":   {},
	"Remove":     {},
	"RemoveAll":  {},
	"Rename":     {},
	"Stat":       {},
	"WriteFile":  {},
}

func TestStorePackagesUseFsAbstraction(t *testing.T) {
	for _, pkg := range []string{"blobstore", "recordstore", "capacity"} {
		for _, path := range packageSources(t, pkg) {
			fset := token.NewFileSet()
			file, err := parser.ParseFile(fset, path, nil, 0)
			if err != nil {
				t.Fatalf("parse %s: %v", path, err)
			}
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				sel, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				ident, ok := sel.X.(*ast.Ident)
				if !ok || ident.Name != "os" {
					return true
				}
				if _, banned := osFileCalls[sel.Sel.Name]; banned {
					t.Errorf("%s: direct os.%s call; use the store's afero.Fs", fset.Position(call.Pos()), sel.Sel.Name)
				}
				return true
			})
		}
	}
}

func packageSources(t *testing.T, pkg string) []string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	dir := filepath.Join(filepath.Dir(self), "..", pkg)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		t.Fatalf("no sources found in %s", dir)
	}
	return files
}
