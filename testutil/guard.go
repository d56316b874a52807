// Package testutil holds test helpers that enforce the import boundaries
// between the domain model, the engines and the storage backends.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// driverPrefixes are the modules only the infra packages may import.
var driverPrefixes = []string{
	"github.com/jackc/pgx",
	"github.com/aws/aws-sdk-go-v2",
	"modernc.org/sqlite",
}

// AssertNoDirectImports parses every non-test .go file in dir and fails the
// test when an import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := DirectImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// InternalImportForbidden matches any import path below an internal/ directory.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasPrefix(path, "internal/")
}

// DriverImportForbidden matches database drivers and cloud SDKs.
func DriverImportForbidden(path string) bool {
	for _, p := range driverPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// AnyOf combines predicates.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// DirectImportViolations lists "path (in file)" for each forbidden import in
// the non-test sources of dir, sorted for stable output.
func DirectImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}
