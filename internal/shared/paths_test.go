package shared

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveSubtree(t *testing.T) {
	base := t.TempDir()

	tc := []struct {
		name    string
		target  string
		want    string
		wantErr error
	}{
		{name: "direct child", target: filepath.Join(base, "x"), want: "x"},
		{name: "nested", target: filepath.Join(base, "x", "Artist", "Album"), want: "x/Artist/Album"},
		{name: "trailing slash", target: filepath.Join(base, "x") + "/", want: "x"},
		{name: "base itself", target: base, want: ""},
		{name: "outside base", target: filepath.Dir(base), wantErr: ErrInvalidArgument},
		{name: "sibling with shared prefix", target: base + "-other", wantErr: ErrInvalidArgument},
		{name: "empty target", target: "", wantErr: ErrMissingArgument},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSubtree(base, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveSubtree() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveFile(t *testing.T) {
	got := ResolveFile("/music", "x/Artist/track.mp3")
	want := filepath.Join("/music", "x", "Artist", "track.mp3")
	if got != want {
		t.Errorf("ResolveFile() = %q, want %q", got, want)
	}

	if got := ResolveFile("/music/", "/x/a.flac"); got != filepath.Join("/music", "x", "a.flac") {
		t.Errorf("leading slash not stripped: %q", got)
	}
}
