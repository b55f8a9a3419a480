package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

// Both implementations must behave the same for the operations pitchtrack
// relies on.
func implementations(t *testing.T) map[string]struct {
	fsys FileSystem
	root string
} {
	return map[string]struct {
		fsys FileSystem
		root string
	}{
		"os":     {OSFileSystem{}, t.TempDir()},
		"memory": {NewMemoryFileSystem(), "work"},
	}
}

func TestFileSystem_WriteReadOpen(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			fsys, root := impl.fsys, impl.root
			if err := fsys.MkdirAll(root, 0o755); err != nil {
				t.Fatalf("MkdirAll: %v", err)
			}
			path := filepath.Join(root, "frames.jsonl")
			want := "{\"frame_number\":0}\n"
			if err := fsys.WriteFile(path, []byte(want), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			data, err := fsys.ReadFile(path)
			if err != nil || string(data) != want {
				t.Fatalf("ReadFile = %q, %v", data, err)
			}

			f, err := fsys.Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer f.Close()
			got, err := io.ReadAll(f)
			if err != nil || string(got) != want {
				t.Errorf("read through Open = %q, %v", got, err)
			}
			info, err := f.Stat()
			if err != nil || info.Size() != int64(len(want)) || info.Name() != "frames.jsonl" {
				t.Errorf("Stat via file = %+v, %v", info, err)
			}

			if !fsys.Exists(path) || fsys.Exists(filepath.Join(root, "missing.jsonl")) {
				t.Error("Exists disagrees with the files written")
			}
		})
	}
}

func TestFileSystem_Missing(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(impl.root, "nope.json")
			if _, err := impl.fsys.Open(path); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Open = %v, want ErrNotExist", err)
			}
			if _, err := impl.fsys.ReadFile(path); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("ReadFile = %v, want ErrNotExist", err)
			}
			if _, err := impl.fsys.Stat(path); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Stat = %v, want ErrNotExist", err)
			}
		})
	}
}

func TestFileSystem_WriteNeedsDirectory(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(impl.root, "no", "such", "dir", "report.json")
			if err := impl.fsys.WriteFile(path, []byte("{}"), 0o644); err == nil {
				t.Error("expected error writing into a missing directory")
			}

			dir := filepath.Join(impl.root, "reports", "2026")
			if err := impl.fsys.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("MkdirAll: %v", err)
			}
			for _, d := range []string{dir, filepath.Dir(dir)} {
				info, err := impl.fsys.Stat(d)
				if err != nil || !info.IsDir() {
					t.Errorf("Stat(%s) = %v, %v; want a directory", d, info, err)
				}
			}
			if err := impl.fsys.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644); err != nil {
				t.Errorf("WriteFile after MkdirAll: %v", err)
			}
		})
	}
}

// ----

func TestMemoryFileSystem_Isolation(t *testing.T) {
	m := NewMemoryFileSystem()
	buf := []byte("abc")
	if err := m.WriteFile("x.txt", buf, 0o600); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'z'

	data, _ := m.ReadFile("x.txt")
	if string(data) != "abc" {
		t.Errorf("stored data aliased the caller's slice: %q", data)
	}
	data[1] = 'z'
	again, _ := m.ReadFile("./x.txt")
	if string(again) != "abc" {
		t.Errorf("ReadFile returned shared storage: %q", again)
	}

	info, err := m.Stat("x.txt")
	if err != nil || info.Mode() != 0o600 || info.IsDir() {
		t.Errorf("Stat = %+v, %v", info, err)
	}
}

func TestMemoryFileSystem_DirectoryConflicts(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("report", []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.MkdirAll("report/inner", 0o755); !errors.Is(err, fs.ErrExist) {
		t.Errorf("MkdirAll through a file = %v, want ErrExist", err)
	}
	if err := m.MkdirAll("out", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteFile("out", []byte("{}"), 0o644); !errors.Is(err, fs.ErrExist) {
		t.Errorf("WriteFile over a directory = %v, want ErrExist", err)
	}
}
