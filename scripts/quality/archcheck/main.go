package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePrefix = "errand-bot/"

// listedPackage is the subset of `go list -json` output the check reads.
type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func main() {
	os.Exit(run(os.Stdout, os.Stderr))
}

func run(stdout, stderr io.Writer) int {
	output, err := goList(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "arch-check: %v\n", err)
		return 1
	}
	packages, err := decodePackages(output)
	if err != nil {
		fmt.Fprintf(stderr, "arch-check: %v\n", err)
		return 1
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		fmt.Fprintln(stdout, "arch-check: passed")
		return 0
	}
	fmt.Fprintf(stdout, "arch-check: %d import boundary violation(s):\n", len(violations))
	for _, violation := range violations {
		fmt.Fprintf(stdout, "  - %s\n", violation)
	}

	return 1
}

func goList(stderr io.Writer) ([]byte, error) {
	var stdout bytes.Buffer
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stdout, cmd.Stderr = &stdout, stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}

	return stdout.Bytes(), nil
}

// decodePackages reads the concatenated JSON objects go list prints.
func decodePackages(output []byte) ([]listedPackage, error) {
	var packages []listedPackage
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var pkg listedPackage
		err := decoder.Decode(&pkg)
		switch {
		case errors.Is(err, io.EOF):
			return packages, nil
		case err != nil:
			return nil, fmt.Errorf("decode go list output: %w", err)
		case pkg.ImportPath != "":
			packages = append(packages, pkg)
		}
	}
}

// collectViolations returns each offending edge once, sorted.
func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})
	for _, pkg := range packages {
		for _, imports := range [][]string{pkg.Imports, pkg.TestImports, pkg.XTestImports} {
			for _, imported := range imports {
				if reason := violationReason(pkg.ImportPath, imported); reason != "" {
					found[pkg.ImportPath+" -> "+imported+" ("+reason+")"] = struct{}{}
				}
			}
		}
	}

	return slices.Sorted(maps.Keys(found))
}

// importRule forbids packages under importer from importing packages under imported.
type importRule struct {
	importer string
	imported string
	reason   string
}

var importRules = []importRule{
	{importer: "pkg/", imported: "internal/", reason: "pkg/* must not import internal/*"},
	{importer: "pkg/", imported: "modules/", reason: "pkg/* must not import modules/*"},
	{importer: "internal/kernel", imported: "internal/driver", reason: "internal/kernel must not import internal/driver/*"},
	{importer: "internal/store", imported: "modules/", reason: "internal/store must not import modules/*"},
	{importer: "internal/fetch", imported: "modules/", reason: "internal/fetch must not import modules/*"},
	{importer: "modules/", imported: "internal/", reason: "modules/* must not import internal/*"},
}

func violationReason(importer, imported string) string {
	if !strings.HasPrefix(importer, modulePrefix) || !strings.HasPrefix(imported, modulePrefix) {
		return ""
	}
	importer = normalizeImportPath(strings.TrimPrefix(importer, modulePrefix))
	imported = normalizeImportPath(strings.TrimPrefix(imported, modulePrefix))

	for _, rule := range importRules {
		if strings.HasPrefix(importer, rule.importer) && strings.HasPrefix(imported, rule.imported) {
			return rule.reason
		}
	}

	// Modules talk to each other only through services.
	if importerModule, ok := moduleName(importer); ok {
		if importedModule, ok := moduleName(imported); ok && importedModule != importerModule {
			return "modules/* must not import other modules"
		}
	}

	return ""
}

// normalizeImportPath folds the test variants reported by go list -test
// ("x [x.test]", "x_test", "x.test") into the package path they belong to.
func normalizeImportPath(importPath string) string {
	importPath, _, _ = strings.Cut(importPath, " ")
	importPath = strings.TrimSuffix(importPath, ".test")

	return strings.TrimSuffix(importPath, "_test")
}

func moduleName(importPath string) (string, bool) {
	rest, ok := strings.CutPrefix(importPath, "modules/")
	if !ok || rest == "" {
		return "", false
	}
	name, _, _ := strings.Cut(rest, "/")

	return name, true
}
