package services

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	tu "github.com/desertthunder/karaokectl/internal/testing"
)

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=Sj_9CiNkkn4", true},
		{"https://youtube.com/watch?list=PL1&v=Sj_9CiNkkn4", true},
		{"https://youtu.be/Sj_9CiNkkn4", true},
		{"https://m.youtube.com/shorts/Sj_9CiNkkn4", true},
		{"https://music.youtube.com/watch?v=Sj_9CiNkkn4", true},
		{"  https://youtu.be/Sj_9CiNkkn4  ", true},
		{"https://www.youtube.com/watch?v=short", false},
		{"https://vimeo.com/12345678901", false},
		{"youtube.com/watch?v=Sj_9CiNkkn4", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsYouTubeURL(tc.url); got != tc.want {
			t.Errorf("IsYouTubeURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestValidateJobSpec(t *testing.T) {
	dir := t.TempDir()
	audio := tu.WriteFile(t, dir, "waterloo.mp3", "ID3 fake audio")
	style := tu.WriteFile(t, dir, "style.json", `{"font":"bold"}`)
	empty := tu.WriteFile(t, dir, "empty.mp3", "")

	t.Run("Valid File Source", func(t *testing.T) {
		spec, err := ValidateJobSpec(models.JobSpec{
			Artist:        "  ABBA ",
			Title:         "Waterloo",
			Source:        models.Source{Kind: models.SourceFile, URL: "https://ignored"},
			FilePath:      audio,
			StyleOverride: style,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if spec.Artist != "ABBA" {
			t.Errorf("expected trimmed artist, got %q", spec.Artist)
		}
		if spec.Source.Filename != "waterloo.mp3" {
			t.Errorf("expected filename waterloo.mp3, got %q", spec.Source.Filename)
		}
		if spec.Source.URL != "" {
			t.Errorf("expected URL to be cleared for file source, got %q", spec.Source.URL)
		}
	})

	t.Run("Valid YouTube Source", func(t *testing.T) {
		spec, err := ValidateJobSpec(models.JobSpec{
			Artist:   "ABBA",
			Title:    "Waterloo",
			Source:   models.Source{Kind: models.SourceYouTube, URL: "https://youtu.be/Sj_9CiNkkn4"},
			FilePath: audio,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if spec.FilePath != "" {
			t.Errorf("expected file path to be dropped, got %q", spec.FilePath)
		}
	})

	tests := []struct {
		name     string
		spec     models.JobSpec
		contains string
	}{
		{
			name:     "Empty Artist",
			spec:     models.JobSpec{Artist: "   ", Title: "Waterloo", Source: models.Source{Kind: models.SourceFile}, FilePath: audio},
			contains: "artist is required",
		},
		{
			name:     "Empty Title",
			spec:     models.JobSpec{Artist: "ABBA", Source: models.Source{Kind: models.SourceFile}, FilePath: audio},
			contains: "title is required",
		},
		{
			name:     "Long Title",
			spec:     models.JobSpec{Artist: "ABBA", Title: strings.Repeat("x", 201), Source: models.Source{Kind: models.SourceFile}, FilePath: audio},
			contains: "at most 200",
		},
		{
			name:     "Missing Source Kind",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo"},
			contains: "choose a file or YouTube source",
		},
		{
			name:     "Unknown Source Kind",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: "ftp"}},
			contains: "source must be",
		},
		{
			name:     "Malformed YouTube URL",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceYouTube, URL: "https://example.com/video"}},
			contains: "YouTube URL does not point to a video",
		},
		{
			name:     "Missing YouTube URL",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceYouTube}},
			contains: "a YouTube URL is required",
		},
		{
			name:     "No File Attached",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceFile}},
			contains: "an audio file is required",
		},
		{
			name:     "Missing File",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceFile}, FilePath: filepath.Join(dir, "nope.mp3")},
			contains: "cannot be read",
		},
		{
			name:     "Empty File",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceFile}, FilePath: empty},
			contains: "is empty",
		},
		{
			name:     "Directory As File",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceFile}, FilePath: dir},
			contains: "is a directory",
		},
		{
			name:     "Missing Style File",
			spec:     models.JobSpec{Artist: "ABBA", Title: "Waterloo", Source: models.Source{Kind: models.SourceFile}, FilePath: audio, StyleOverride: filepath.Join(dir, "nope.json")},
			contains: "style file",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateJobSpec(tc.spec)
			if !errors.Is(err, shared.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("expected error to contain %q, got %q", tc.contains, err.Error())
			}
		})
	}
}
