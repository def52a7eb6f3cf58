// Package testlist discovers the top-level test functions of a Go package
// from its sources, without compiling it.
package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// PackageDir resolves pkgPath to a directory below workingDir. pkgPath is
// either relative ("./itf/payments") or an import path inside the module
// declared by workingDir/go.mod.
func PackageDir(pkgPath, workingDir string) (string, error) {
	if pkgPath == "." || strings.HasPrefix(pkgPath, "./") {
		return filepath.Join(workingDir, strings.TrimPrefix(pkgPath, "./")), nil
	}

	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	modFile, err := modfile.ParseLax(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}

	moduleName := modFile.Module.Mod.Path
	if pkgPath != moduleName && !strings.HasPrefix(pkgPath, moduleName+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}
	return filepath.Join(workingDir, strings.TrimPrefix(pkgPath, moduleName)), nil
}

// FindTestFunctions returns the names of the test functions declared in the
// _test.go files of pkgPath, sorted by name. TestMain is excluded.
func FindTestFunctions(pkgPath string, workingDir string) ([]string, error) {
	pkgDir, err := PackageDir(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	fset := token.NewFileSet()
	seen := make(map[string]struct{})
	var testFunctions []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !isTestFunc(fn) {
				continue
			}
			if _, dup := seen[fn.Name.Name]; dup {
				continue
			}
			seen[fn.Name.Name] = struct{}{}
			testFunctions = append(testFunctions, fn.Name.Name)
		}
	}

	sort.Strings(testFunctions)
	return testFunctions, nil
}

// isTestFunc matches top-level func TestXxx(t *testing.T)
func isTestFunc(fn *ast.FuncDecl) bool {
	name := fn.Name.Name
	if fn.Recv != nil || name == "TestMain" || !strings.HasPrefix(name, "Test") {
		return false
	}
	// go test ignores names such as Testable
	if len(name) > 4 {
		r := name[4]
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	params := fn.Type.Params
	return params != nil && len(params.List) == 1 && len(params.List[0].Names) <= 1
}
