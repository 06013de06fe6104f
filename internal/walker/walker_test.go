package walker

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFind_RecursiveLexicalOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, rel := range []string{
		"A/B/C/TRABCEI.json",
		"A/A/B/TRAABJL.json",
		"A/A/A/TRAAAAW.json",
		"A/A/A/notes.txt",
		"A/A/A/UPPER.JSON",
		"top.json",
	} {
		writeFile(t, filepath.Join(root, rel))
	}

	got := Find(root, ".json")
	want := []string{
		filepath.Join(root, "A/A/A/TRAAAAW.json"),
		filepath.Join(root, "A/A/B/TRAABJL.json"),
		filepath.Join(root, "A/B/C/TRABCEI.json"),
		filepath.Join(root, "top.json"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Find=%v\nwant %v", got, want)
	}
}

func TestFind_ExtWithoutDot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.json"))

	if got := Find(root, "json"); len(got) != 1 {
		t.Fatalf("Find=%v, want 1 file", got)
	}
}

func TestFind_ReturnsAbsolutePaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.json"))

	for _, p := range Find(root, ".json") {
		if !filepath.IsAbs(p) {
			t.Fatalf("path %q is not absolute", p)
		}
	}
}

func TestFind_MissingOrEmptyRoot(t *testing.T) {
	t.Parallel()

	if got := Find(filepath.Join(t.TempDir(), "nope"), ".json"); len(got) != 0 {
		t.Fatalf("missing root: Find=%v, want empty", got)
	}
	if got := Find(t.TempDir(), ".json"); len(got) != 0 {
		t.Fatalf("empty root: Find=%v, want empty", got)
	}
}
