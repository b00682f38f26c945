package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fmradiod/internal/config"
	"github.com/fmradiod/internal/httpd"
)

func createTestDaemon(t *testing.T) string {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Audio.Backend = "sim"
	cfg.RDS.PollIntervalMs = 1

	engine, err := buildEngine(cfg, nil)
	if err != nil {
		t.Fatalf("buildEngine failed: %v", err)
	}
	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	server, err := httpd.NewServer(httpd.Config{Host: "127.0.0.1"}, buildContent(cfg, engine, buildActions(cfg, engine)), nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	return "http://" + server.Addr().String() + cfg.Network.HTTP.ControlPath
}

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newCtlCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCtlQuery(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"nothing", nil, "", false},
		{"tune", []string{"-t", "101.1"}, "tune=101.10", false},
		{"tune with unit", []string{"--tune", "94.9MHz"}, "tune=94.90", false},
		{"seek up with strength", []string{"-u", "-s", "120"}, "seek=up&strength=120", false},
		{"seek down", []string{"-d"}, "seek=down", false},
		{"volume and led", []string{"-v", "7", "-l", "2"}, "led=2&volume=7", false},
		{"rds off", []string{"--rds=false"}, "rds=0", false},
		{"power on", []string{"--power"}, "power=1", false},
		{"both directions", []string{"-u", "-d"}, "", true},
		{"strength alone", []string{"-s", "10"}, "", true},
		{"bad frequency", []string{"-t", "loud"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newCtlCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags failed: %v", err)
			}
			q, err := ctlQuery(cmd)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %v", q)
				}
				return
			}
			if err != nil {
				t.Fatalf("ctlQuery failed: %v", err)
			}
			if got := q.Encode(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCtlAgainstDaemon(t *testing.T) {
	addr := createTestDaemon(t)

	out, err := runCtl(t, "--addr", addr, "-t", "101.1")
	if err != nil {
		t.Fatalf("ctl failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "101.1 MHz (US)") {
		t.Errorf("Expected tuned summary, got %q", out)
	}
	if !strings.Contains(out, "94.90") {
		t.Errorf("Expected station list, got %q", out)
	}

	out, err = runCtl(t, "--addr", addr, "-x")
	if err != nil {
		t.Fatalf("ctl failed: %v", err)
	}
	if !strings.HasPrefix(out, "<?xml") {
		t.Errorf("Expected raw document, got %q", out)
	}
}

func TestCtlReportsDaemonError(t *testing.T) {
	addr := createTestDaemon(t)

	out, err := runCtl(t, "--addr", addr, "-v", "99")
	if err == nil {
		t.Fatal("Expected an error for a rejected request")
	}
	if !strings.Contains(out, "error: OUT_OF_RANGE") {
		t.Errorf("Expected error line, got %q", out)
	}
}

func TestPrintSummaryEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := printSummary(&out, nil); err == nil {
		t.Error("Expected an empty document to fail")
	}
}
