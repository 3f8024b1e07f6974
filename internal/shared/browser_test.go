package shared

import (
	"errors"
	"os/exec"
	"testing"
)

func TestOpenBrowser(t *testing.T) {
	origRuntime, origStart := getRuntime, startCommand
	t.Cleanup(func() { getRuntime, startCommand = origRuntime, origStart })

	var launched []string
	startCommand = func(cmd *exec.Cmd) error {
		launched = cmd.Args
		return nil
	}

	t.Run("Linux Uses xdg-open", func(t *testing.T) {
		getRuntime = func() string { return "linux" }
		if err := OpenBrowser("https://cdn.example.com/preview/a.mp3"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(launched) != 2 || launched[0] != "xdg-open" {
			t.Errorf("unexpected command %v", launched)
		}
	})

	t.Run("Rejects Non Web URLs", func(t *testing.T) {
		for _, u := range []string{"file:///etc/passwd", "javascript:alert(1)", "", "https://"} {
			if err := OpenBrowser(u); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("OpenBrowser(%q) = %v, want ErrInvalidInput", u, err)
			}
		}
	})

	t.Run("Unsupported Platform", func(t *testing.T) {
		getRuntime = func() string { return "plan9" }
		if err := OpenBrowser("https://example.com"); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})

	t.Run("Start Failure", func(t *testing.T) {
		getRuntime = func() string { return "darwin" }
		startCommand = func(*exec.Cmd) error { return errors.New("no display") }
		if err := OpenBrowser("https://example.com"); err == nil {
			t.Error("expected start failure to propagate")
		}
	})
}
