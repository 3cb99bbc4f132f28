package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string
	imp  string
}

// scanImports parses every non-test file under internal/ and returns its
// module-internal imports.
func scanImports(t *testing.T) (string, []importRef) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var refs []importRef
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			refs = append(refs, importRef{file: filepath.ToSlash(rel), imp: strings.TrimPrefix(imp, modulePath+"/")})
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath, refs
}

func TestImportBoundaries(t *testing.T) {
	_, refs := scanImports(t)

	var b strings.Builder
	for _, r := range refs {
		for _, bad := range disallowedImports(layerFor(r.file)) {
			if importMatches(r.imp, bad) {
				fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", r.file, r.imp, bad)
				break
			}
		}
	}
	if b.Len() > 0 {
		t.Fatal("import boundary violations:\n" + b.String())
	}
}

// importMatches reports whether imp is the package rule names or lives below
// it. A rule ending in "/" matches only subpackages.
func importMatches(imp, rule string) bool {
	if strings.HasSuffix(rule, "/") {
		return strings.HasPrefix(imp, rule)
	}
	return imp == rule || strings.HasPrefix(imp, rule+"/")
}

func TestImportMatchesWholeSegments(t *testing.T) {
	cases := []struct {
		imp, rule string
		want      bool
	}{
		{"internal/cli", "internal/cli", true},
		{"internal/clients/renderer", "internal/cli", false},
		{"internal/http/response", "internal/http", true},
		{"internal/httpx", "internal/http", false},
		{"internal/jobs/queue", "internal/jobs/", true},
		{"internal/jobs", "internal/jobs/", false},
	}
	for _, tc := range cases {
		if got := importMatches(tc.imp, tc.rule); got != tc.want {
			t.Fatalf("importMatches(%q, %q): got=%v want=%v", tc.imp, tc.rule, got, tc.want)
		}
	}
}

// The store is reached through repos, the job queue and the realtime bus.
func TestStoreImportedOnlyByAdapters(t *testing.T) {
	_, refs := scanImports(t)

	allowed := []string{
		"internal/store/",
		"internal/repos/",
		"internal/jobs/queue/",
		"internal/jobs/coordinator/",
		"internal/realtime/bus/",
		"internal/app/",
	}
	var b strings.Builder
	for _, r := range refs {
		if r.imp != "internal/store" {
			continue
		}
		ok := false
		for _, prefix := range allowed {
			if strings.HasPrefix(r.file, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			fmt.Fprintf(&b, "- %s\n", r.file)
		}
	}
	if b.Len() > 0 {
		t.Fatal("internal/store imported outside its adapters:\n" + b.String())
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/services/"):
		return "services"
	case strings.HasPrefix(rel, "internal/jobs/"):
		return "jobs"
	case strings.HasPrefix(rel, "internal/http/"):
		return "http"
	default:
		return ""
	}
}

func disallowedImports(layer string) []string {
	switch layer {
	case "platform":
		return []string{
			"internal/http/",
			"internal/jobs/",
			"internal/services",
			"internal/repos",
			"internal/store",
			"internal/realtime",
			"internal/app",
		}
	case "domain":
		return []string{
			"internal/",
		}
	case "services":
		return []string{
			"internal/http",
			"internal/jobs/",
			"internal/store",
			"internal/repos",
			"internal/app",
		}
	case "jobs":
		return []string{
			"internal/http",
			"internal/app",
			"internal/cli",
		}
	case "http":
		return []string{
			"internal/store",
			"internal/app",
			"internal/cli",
			"internal/jobs/worker",
			"internal/jobs/pipeline/",
		}
	default:
		return nil
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
