package storage

import (
	"context"
	"errors"
	"testing"

	"sciencenova/internal/domain"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "plain", key: "generated/jobs/a/p1.png", want: "generated/jobs/a/p1.png"},
		{name: "leading slash", key: "/generated/x.png", want: "generated/x.png"},
		{name: "backslashes", key: `generated\jobs\x.png`, want: "generated/jobs/x.png"},
		{name: "dot segments", key: "generated/../x.png", want: "x.png"},
		{name: "escape", key: "../../etc/passwd", wantErr: true},
		{name: "parent only", key: "..", wantErr: true},
		{name: "empty", key: "  ", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q) error: %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestSavePageImageRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.SavePageImage(context.Background(), "01JOB", "page-2", domain.Image{Data: []byte("jpeg"), MIMEType: "image/jpeg"})
	if err != nil {
		t.Fatalf("SavePageImage: %v", err)
	}
	if key != "generated/jobs/01JOB/page-2.jpg" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "jpeg" {
		t.Fatalf("data = %q, want jpeg", data)
	}
	if _, err := store.Read("generated/missing.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Read missing err = %v, want ErrNotFound", err)
	}
}

func TestJobPageImages(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.JobPageImages("01EMPTY"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty job err = %v, want ErrNotFound", err)
	}

	for _, page := range []string{"p2", "p1"} {
		if _, err := store.SavePageImage(ctx, "01JOB", page, domain.Image{Data: []byte(page), MIMEType: "image/png"}); err != nil {
			t.Fatalf("SavePageImage(%s): %v", page, err)
		}
	}
	files, err := store.JobPageImages("01JOB")
	if err != nil {
		t.Fatalf("JobPageImages: %v", err)
	}
	if len(files) != 2 || files[0].Name != "p1.png" || string(files[1].Data) != "p2" {
		t.Fatalf("files = %+v", files)
	}
	if _, err := store.JobPageImages("../../../etc"); err == nil {
		t.Fatalf("escaping job id should be rejected")
	}
}
