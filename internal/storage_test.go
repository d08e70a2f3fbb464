package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestLocalStoragePutOpenDelete(t *testing.T) {
	ctx := context.Background()
	storage := NewLocalStorage(t.TempDir())
	key := MediaKey("p1", "abc", "Episode.MP4")
	if key != "projects/p1/abc.mp4" {
		t.Fatalf("unexpected key %q", key)
	}

	if err := storage.Put(ctx, key, strings.NewReader("video"), 5, "video/mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := storage.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "video" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := storage.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("expected deleting a missing file to succeed, got %v", err)
	}
}

func TestLocalStorageRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	storage := NewLocalStorage(t.TempDir())
	for _, key := range []string{"", "/etc/passwd", "projects/../../secret", `projects\p1`} {
		if err := storage.Put(ctx, key, strings.NewReader("x"), 1, ""); !errors.Is(err, ErrValidation) {
			t.Errorf("Put(%q): expected validation error, got %v", key, err)
		}
		if _, err := storage.UploadURL(ctx, key, 0); !errors.Is(err, ErrValidation) {
			t.Errorf("UploadURL(%q): expected validation error, got %v", key, err)
		}
	}
}

func TestLocalStoragePutHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	storage := NewLocalStorage(t.TempDir())
	if err := storage.Put(ctx, "projects/p1/a.mp4", strings.NewReader("video"), 5, ""); err == nil {
		t.Fatal("expected cancelled put to fail")
	}
	if p, _ := storage.Path("projects/p1/a.mp4"); FileExists(p) {
		t.Fatal("expected no partial file")
	}
}

// remoteOnly hides the local path so LocalCopy has to download
type remoteOnly struct{ FileStorage }

func TestLocalCopy(t *testing.T) {
	ctx := context.Background()
	local := NewLocalStorage(t.TempDir())
	key := "projects/p1/a.mp4"
	if err := local.Put(ctx, key, strings.NewReader("video"), 5, ""); err != nil {
		t.Fatal(err)
	}

	p, cleanup, err := LocalCopy(ctx, local, key, t.TempDir())
	if err != nil {
		t.Fatalf("LocalCopy(local): %v", err)
	}
	cleanup()
	if want, _ := local.Path(key); p != want || !FileExists(p) {
		t.Fatalf("expected the stored file in place, got %q", p)
	}

	p, cleanup, err = LocalCopy(ctx, remoteOnly{local}, key, t.TempDir())
	if err != nil {
		t.Fatalf("LocalCopy(remote): %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "video" {
		t.Fatalf("unexpected download %q: %v", data, err)
	}
	cleanup()
	if FileExists(p) {
		t.Fatal("expected cleanup to remove the download")
	}

	if _, _, err := LocalCopy(ctx, local, "projects/p1/missing.mp4", t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewFileStorageRejectsUnknownBackend(t *testing.T) {
	_, err := NewFileStorage(context.Background(), &Config{StorageBackend: "ftp"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
