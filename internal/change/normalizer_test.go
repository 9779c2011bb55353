package change

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestNormalizeCreateReadsContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "hello")

	normalizer := NewNormalizer(root)
	got := normalizer.Normalize(Notification{Op: OpCreate, Paths: []string{path}})

	want := []Event{Create(path, []byte("hello"))}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
}

func TestNormalizeModifyBecomesUpdate(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "v2")

	normalizer := NewNormalizer(root)
	got := normalizer.Normalize(Notification{Op: OpModify, Paths: []string{path}})

	want := []Event{Update(path, []byte("v2"))}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
}

func TestNormalizeExpandsPathsInOrder(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "b.txt")
	second := filepath.Join(root, "a.txt")
	writeFile(t, first, "1")
	writeFile(t, second, "2")

	normalizer := NewNormalizer(root)
	got := normalizer.Normalize(Notification{Op: OpCreate, Paths: []string{first, second}})

	want := []Event{Create(first, []byte("1")), Create(second, []byte("2"))}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
}

func TestNormalizeReadFailureEmitsEmptyContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")

	normalizer := NewNormalizer(root)
	normalizer.readFile = func(string) ([]byte, error) {
		return nil, fs.ErrNotExist
	}
	got := normalizer.Normalize(Notification{Op: OpCreate, Paths: []string{path}})

	if len(got) != 1 || got[0].Kind != KindCreate || len(got[0].Content) != 0 {
		t.Fatalf("expected one empty create, got %+v", got)
	}
	if !normalizer.Observed(path) {
		t.Fatal("expected path to be observed after create")
	}
}

func TestNormalizeDropsDirectoriesAndOtherOps(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sub")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	file := filepath.Join(root, "a.txt")
	writeFile(t, file, "x")

	normalizer := NewNormalizer(root)
	if got := normalizer.Normalize(Notification{Op: OpCreate, Paths: []string{dir}}); len(got) != 0 {
		t.Fatalf("expected directory create to be dropped, got %+v", got)
	}
	if got := normalizer.Normalize(Notification{Op: OpOther, Paths: []string{file}}); len(got) != 0 {
		t.Fatalf("expected metadata change to be dropped, got %+v", got)
	}
}

func TestNormalizeDropsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "elsewhere.txt")

	normalizer := NewNormalizer(root)
	got := normalizer.Normalize(Notification{Op: OpModify, Paths: []string{outside, root}})
	if len(got) != 0 {
		t.Fatalf("expected no events, got %+v", got)
	}
}

func TestNormalizeDeleteOnlyForObservedPaths(t *testing.T) {
	root := t.TempDir()
	seen := filepath.Join(root, "seen.txt")
	unseen := filepath.Join(root, "unseen.txt")

	normalizer := NewNormalizer(root)
	normalizer.Observe(seen)

	got := normalizer.Normalize(Notification{Op: OpRemove, Paths: []string{unseen, seen}})
	want := []Event{Delete(seen)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}

	if again := normalizer.Normalize(Notification{Op: OpRemove, Paths: []string{seen}}); len(again) != 0 {
		t.Fatalf("expected a second removal to be dropped, got %+v", again)
	}
}

func TestNormalizeDirectoryRemovalExpandsToChildren(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pkg")
	children := []string{
		filepath.Join(dir, "z.txt"),
		filepath.Join(dir, "nested", "a.txt"),
	}
	sibling := filepath.Join(root, "pkg-other", "keep.txt")

	normalizer := NewNormalizer(root)
	normalizer.Observe(append(children, sibling)...)

	got := normalizer.Normalize(Notification{Op: OpRemove, Paths: []string{dir}})
	want := []Event{
		Delete(filepath.Join(dir, "nested", "a.txt")),
		Delete(filepath.Join(dir, "z.txt")),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
	if !normalizer.Observed(sibling) {
		t.Fatal("sibling directory must not be affected")
	}
}

func TestFromFSNotifyClassifies(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want Op
	}{
		{fsnotify.Create, OpCreate},
		{fsnotify.Create | fsnotify.Write, OpCreate},
		{fsnotify.Write, OpModify},
		{fsnotify.Remove, OpRemove},
		{fsnotify.Rename, OpRemove},
		{fsnotify.Chmod, OpOther},
	}
	for _, tc := range cases {
		got := FromFSNotify(fsnotify.Event{Name: "/tmp/x", Op: tc.op})
		if got.Op != tc.want {
			t.Fatalf("op %v: expected %v, got %v", tc.op, tc.want, got.Op)
		}
		if diff := cmp.Diff([]string{"/tmp/x"}, got.Paths); diff != "" {
			t.Fatalf("unexpected paths: %s", diff)
		}
	}
}

func TestFailureEventCarriesError(t *testing.T) {
	cause := errors.New("queue overflow")
	event := Failure(cause)
	if event.Kind != KindError || !errors.Is(event.Err, cause) {
		t.Fatalf("unexpected failure event %+v", event)
	}
	if event.Kind.String() != "error" {
		t.Fatalf("unexpected kind name %q", event.Kind.String())
	}
}
