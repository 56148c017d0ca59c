package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/webbind/config"
	"github.com/wippyai/webbind/web"
)

func TestSetupJSONAndInstall(t *testing.T) {
	var buf bytes.Buffer
	logger, err := setup(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { Install(zap.NewNop()) })

	web.Logger().Debug("routed", zap.String("path", "/x"))
	_ = logger.Sync()

	out := buf.String()
	if !strings.Contains(out, `"logger":"web"`) || !strings.Contains(out, `"path":"/x"`) {
		t.Errorf("web logger not installed, output %q", out)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := setup(config.LogConfig{Level: "warn", Format: "console"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { Install(zap.NewNop()) })

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output %q", buf.String())
	}
}

func TestFileOutputs(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "nested", "plain.log")
	rotated := filepath.Join(dir, "rotated.log")

	logger, err := SetupLogger(config.LogConfig{Level: "info", Format: "json", Outputs: []string{plain}})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file")
	_ = logger.Sync()

	logger, err = SetupLogger(config.LogConfig{
		Level:    "info",
		Format:   "json",
		Outputs:  []string{"ignored.log"},
		Rotation: config.RotationConfig{Enable: true, Filename: rotated},
	})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to rotated file")
	_ = logger.Sync()
	t.Cleanup(func() { Install(zap.NewNop()) })

	for path, want := range map[string]string{plain: "to file", rotated: "to rotated file"} {
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(b), want) {
			t.Errorf("%s = %q", filepath.Base(path), b)
		}
	}
}
