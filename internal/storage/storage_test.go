package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/friendsincode/teamslot/internal/config"
	"github.com/rs/zerolog"
)

func TestFSStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewFSStore(root, zerolog.Nop())
	ctx := context.Background()

	if err := store.Put(ctx, "schedules/1/2.ics", []byte("BEGIN:VCALENDAR"), "text/calendar"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "schedules", "1", "2.ics")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	if err := store.Put(ctx, "schedules/1/2.ics", []byte("replaced"), ""); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, err := store.Get(ctx, "schedules/1/2.ics")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "replaced" {
		t.Fatalf("Get = %q", got)
	}

	if err := store.Delete(ctx, "schedules/1/2.ics"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "schedules/1/2.ics"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "schedules/1/2.ics"); err != nil {
		t.Fatalf("deleting a missing object should succeed: %v", err)
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"schedules/1/2.ics", "schedules/1/2.ics", false},
		{"schedules//1/./2.ics", "schedules/1/2.ics", false},
		{"", "", true},
		{"/etc/passwd", "", true},
		{"../secret", "", true},
		{"a/../../b", "", true},
		{`a\b`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("cleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("cleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	store := NewFSStore(t.TempDir(), zerolog.Nop())
	if err := store.Put(context.Background(), "../outside", []byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Put error = %v, want ErrInvalidKey", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := New(context.Background(), &config.Config{ArchiveDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := store.(*FSStore); !ok {
		t.Fatalf("store = %T, want *FSStore", store)
	}

	store, err = New(context.Background(), &config.Config{
		S3Bucket:          "archive",
		S3Region:          "eu-west-1",
		S3AccessKeyID:     "key",
		S3SecretAccessKey: "secret",
		S3Endpoint:        "http://127.0.0.1:9000",
		S3UsePathStyle:    true,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New with bucket: %v", err)
	}
	if _, ok := store.(*S3Store); !ok {
		t.Fatalf("store = %T, want *S3Store", store)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}, zerolog.Nop()); err == nil {
		t.Fatal("expected an error without a bucket")
	}
}
