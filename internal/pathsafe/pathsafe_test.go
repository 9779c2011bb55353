package pathsafe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveJoinsUnderBase(t *testing.T) {
	base := t.TempDir()

	got, err := Resolve(base, "a/b.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(base, "a", "b.txt")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolveCleansInteriorDotDot(t *testing.T) {
	base := t.TempDir()

	got, err := Resolve(base, "a/../b.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(base, "b.txt") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestResolveRejectsInvalidPaths(t *testing.T) {
	base := t.TempDir()
	cases := map[string]string{
		"traversal":       "../../etc/passwd",
		"sneaky":          "a/../../outside.txt",
		"absolute":        "/etc/passwd",
		"empty":           "",
		"base itself":     ".",
		"nul byte":        "a\x00b",
		"invalid utf8":    string([]byte{0xff, 0xfe}),
		"parent only":     "..",
		"trailing parent": "a/b/../../..",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(base, input)
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("expected ErrInvalidPath for %q, got %v", input, err)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "root")
	if !Within(root, filepath.Join(root, "a.txt")) {
		t.Fatal("expected child to be within root")
	}
	if Within(root, root) {
		t.Fatal("root is not strictly within itself")
	}
	if Within(root, root+"-sibling") {
		t.Fatal("sibling with shared prefix must not match")
	}
}

func TestEnsureParentCreatesDirectories(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "a", "b", "c.txt")

	if err := EnsureParent(path); err != nil {
		t.Fatalf("ensure parent: %v", err)
	}
	info, err := os.Stat(filepath.Join(base, "a", "b"))
	if err != nil {
		t.Fatalf("stat parent: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected parent to be a directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be left untouched, got %v", err)
	}
}

func TestEnsureParentReportsFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	if err := EnsureParent(filepath.Join(blocker, "child", "c.txt")); err == nil {
		t.Fatal("expected error when an ancestor is a file")
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	base := filepath.Join(parent, "base")
	outside := filepath.Join(parent, "outside")
	for _, dir := range []string{base, outside} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(base, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "target.txt"), filepath.Join(base, "file-link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	for _, input := range []string{"link/x.txt", "link/new/dir/x.txt", "file-link"} {
		if _, err := Resolve(base, input); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected ErrInvalidPath for %q, got %v", input, err)
		}
	}
}

func TestResolveAllowsSymlinkInsideBase(t *testing.T) {
	base := t.TempDir()
	if err := os.Mkdir(filepath.Join(base, "real"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(filepath.Join(base, "real"), filepath.Join(base, "alias")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	got, err := Resolve(base, "alias/x.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(base, "alias", "x.txt") {
		t.Fatalf("unexpected path %q", got)
	}
}
