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

type violation struct {
	file string
	imp  string
	rule string
}

// corePackages form the pure engine under internal/assessment.
var corePackages = map[string]bool{
	"irt": true, "estimate": true, "exposure": true, "cat": true,
	"bank": true, "session": true, "scoring": true,
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	violations := scanImports(t, root, func(rel, imp string) string {
		for _, bad := range disallowedImports(modulePath, layerFor(rel)) {
			if strings.HasPrefix(imp, bad) {
				return bad
			}
		}
		return ""
	})
	report(t, "import boundary violations:", violations)
}

func TestClientsOnlyImportedByApp(t *testing.T) {
	root, modulePath := moduleRoot(t)
	clients := modulePath + "/internal/clients/"
	violations := scanImports(t, root, func(rel, imp string) string {
		if strings.HasPrefix(rel, "internal/clients/") || strings.HasPrefix(rel, "internal/app/") {
			return ""
		}
		if strings.HasPrefix(imp, clients) {
			return clients
		}
		return ""
	})
	report(t, "internal/clients imported outside internal/app (inject an interface instead):", violations)
}

func TestCommandsGoThroughApp(t *testing.T) {
	root, modulePath := moduleRoot(t)
	banned := []string{
		modulePath + "/internal/data/",
		modulePath + "/internal/clients/",
	}
	violations := scanImports(t, root, func(rel, imp string) string {
		if !strings.HasPrefix(rel, "cmd/") {
			return ""
		}
		for _, bad := range banned {
			if strings.HasPrefix(imp, bad) {
				return bad
			}
		}
		return ""
	})
	report(t, "cmd/ reaches storage directly (wire it in internal/app):", violations)
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/platform/"), strings.HasPrefix(rel, "internal/pkg/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/assessment/"):
		pkg, _, _ := strings.Cut(strings.TrimPrefix(rel, "internal/assessment/"), "/")
		if corePackages[pkg] {
			return "core"
		}
		return "orchestration"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	internal := modulePath + "/internal/"
	switch layer {
	case "platform":
		return []string{internal + "assessment/", internal + "domain/", internal + "data/", internal + "app"}
	case "domain":
		return []string{internal + "assessment/", internal + "data/", internal + "observability", internal + "app"}
	case "data":
		return []string{internal + "assessment/", internal + "app"}
	case "core":
		return []string{
			internal + "assessment/runner",
			internal + "assessment/simulate",
			internal + "data/",
			internal + "app",
			"gorm.io/",
			"github.com/redis/",
		}
	case "orchestration":
		return []string{internal + "data/", internal + "app"}
	default:
		return nil
	}
}

// scanImports parses every .go file under internal/ and cmd/ and records the
// imports for which check names a rule.
func scanImports(t *testing.T, root string, check func(rel, imp string) string) []violation {
	t.Helper()
	fset := token.NewFileSet()
	var out []violation
	for _, dir := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return err
			}
			for _, is := range f.Imports {
				imp, err := strconv.Unquote(is.Path.Value)
				if err != nil {
					continue
				}
				if rule := check(rel, imp); rule != "" {
					out = append(out, violation{file: rel, imp: imp, rule: rule})
				}
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			t.Fatalf("walk %s/: %v", dir, err)
		}
	}
	return out
}

func report(t *testing.T, header string, violations []violation) {
	t.Helper()
	if len(violations) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s imports %q (rule: %q)\n", v.file, v.imp, v.rule)
	}
	t.Fatal(b.String())
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
	mp, err := readModulePath(filepath.Join(dir, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return dir, mp
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
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			if mp = strings.TrimSpace(mp); mp != "" {
				return mp, nil
			}
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
