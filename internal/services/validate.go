package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	"github.com/go-playground/validator/v10"
)

var youtubeURLPattern = regexp.MustCompile(`^https?://(www\.|m\.|music\.)?(youtube\.com/(watch\?(.*&)?v=|shorts/|embed/)|youtu\.be/)[A-Za-z0-9_-]{11}`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("youtube_url", func(fl validator.FieldLevel) bool {
		return IsYouTubeURL(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(jobSpecRules, models.JobSpec{})
	return v
}

// IsYouTubeURL reports whether raw looks like a link to a single YouTube video.
func IsYouTubeURL(raw string) bool {
	return youtubeURLPattern.MatchString(strings.TrimSpace(raw))
}

func jobSpecRules(sl validator.StructLevel) {
	spec := sl.Current().Interface().(models.JobSpec)

	switch spec.Source.Kind {
	case models.SourceYouTube:
		if spec.Source.URL == "" {
			sl.ReportError(spec.Source.URL, "URL", "URL", "required_youtube", "")
		}
	case models.SourceFile:
		if spec.FilePath == "" {
			sl.ReportError(spec.FilePath, "FilePath", "FilePath", "required_file", "")
		}
	}
}

// ValidateJobSpec trims and checks a [models.JobSpec], returning the normalized copy.
//
// Every failure wraps [shared.ErrValidation] with a message fit for showing next to the form.
func ValidateJobSpec(spec models.JobSpec) (models.JobSpec, error) {
	spec.Artist = strings.TrimSpace(spec.Artist)
	spec.Title = strings.TrimSpace(spec.Title)
	spec.Source.URL = strings.TrimSpace(spec.Source.URL)
	spec.FilePath = strings.TrimSpace(spec.FilePath)
	spec.StyleOverride = strings.TrimSpace(spec.StyleOverride)

	switch spec.Source.Kind {
	case models.SourceYouTube:
		spec.FilePath = ""
		spec.Source.Filename = ""
	case models.SourceFile:
		spec.Source.URL = ""
		if spec.FilePath != "" {
			spec.FilePath = shared.ExpandHome(spec.FilePath)
			spec.Source.Filename = filepath.Base(spec.FilePath)
		}
	}
	if spec.StyleOverride != "" {
		spec.StyleOverride = shared.ExpandHome(spec.StyleOverride)
	}

	if err := validate.Struct(spec); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return spec, fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}

		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return spec, fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
	}

	if spec.Source.Kind == models.SourceFile {
		if err := checkReadable(spec.FilePath); err != nil {
			return spec, fmt.Errorf("%w: audio file %v", shared.ErrValidation, err)
		}
	}
	if spec.StyleOverride != "" {
		if err := checkReadable(spec.StyleOverride); err != nil {
			return spec, fmt.Errorf("%w: style file %v", shared.ErrValidation, err)
		}
	}

	return spec, nil
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Errorf("%q cannot be read", path)
	case info.IsDir():
		return fmt.Errorf("%q is a directory", path)
	case info.Size() == 0:
		return fmt.Errorf("%q is empty", path)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())

	switch fe.Tag() {
	case "required":
		if fe.Field() == "Kind" {
			return "choose a file or YouTube source"
		}
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return "source must be a file or a YouTube URL"
	case "youtube_url":
		return "YouTube URL does not point to a video"
	case "required_youtube":
		return "a YouTube URL is required"
	case "required_file":
		return "an audio file is required"
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
