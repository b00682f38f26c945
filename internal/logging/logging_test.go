package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmradiod/internal/config"
)

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fmradiod.log")
	closer := Setup(config.LoggingConfig{File: path, MaxSizeMB: 1})
	defer log.SetOutput(os.Stderr)

	log.Printf("Logging: hello from the test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "Logging: hello from the test") {
		t.Errorf("Expected log line in file, got %q", data)
	}
	if !strings.Contains(string(data), "logging_test.go") {
		t.Errorf("Expected short file name in log line, got %q", data)
	}
}

func TestSetupStderrOnly(t *testing.T) {
	closer := Setup(config.LoggingConfig{})
	if err := closer.Close(); err != nil {
		t.Errorf("Expected no-op close, got %v", err)
	}
	if log.Flags()&log.Lshortfile == 0 {
		t.Error("Expected Lshortfile to be set")
	}
}
