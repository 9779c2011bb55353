package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filerelay/internal/config"
)

func noEnv(string) (string, bool) { return "", false }

func TestParseConfigLayersFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	payload := "root: " + dir + "\nlisten: 127.0.0.1:7000\nqueue_size: 8\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := map[string]string{"FILERELAY_LISTEN": "127.0.0.1:7001", "FILERELAY_TRANSPORT": "http"}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	cfg, showVersion, err := parseConfig([]string{"--config", path, "--queue-size", "16", "--poll-timeout", "3s", "--ignore", ".git", "--ignore", "*.tmp"}, &bytes.Buffer{}, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if showVersion {
		t.Fatal("did not ask for version")
	}
	if cfg.Root != dir || cfg.Listen != "127.0.0.1:7001" || cfg.Transport != config.TransportHTTP {
		t.Fatalf("unexpected layering: %+v", cfg)
	}
	if cfg.QueueSize != 16 || cfg.PollTimeout != 3*time.Second {
		t.Fatalf("flags did not win: %+v", cfg)
	}
	if len(cfg.Ignore) != 2 || cfg.Ignore[0] != ".git" || cfg.Ignore[1] != "*.tmp" {
		t.Fatalf("unexpected ignore patterns %v", cfg.Ignore)
	}
}

func TestParseConfigDefaultsRootToWorkingDirectory(t *testing.T) {
	cfg, _, err := parseConfig([]string{"--config", ""}, &bytes.Buffer{}, noEnv)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	wd, _ := os.Getwd()
	if cfg.Root != wd {
		t.Fatalf("expected root %q, got %q", wd, cfg.Root)
	}
}

func TestParseConfigRejectsInvalidValues(t *testing.T) {
	_, _, err := parseConfig([]string{"--config", "", "--transport", "carrier-pigeon"}, &bytes.Buffer{}, noEnv)
	if err == nil || !strings.Contains(err.Error(), "transport") {
		t.Fatalf("expected transport validation error, got %v", err)
	}
}

func TestParseConfigMissingExplicitFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, _, err := parseConfig([]string{"--config", missing}, &bytes.Buffer{}, noEnv); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestParseConfigHelpAndVersion(t *testing.T) {
	var stderr bytes.Buffer
	if _, _, err := parseConfig([]string{"--help"}, &stderr, noEnv); !errors.Is(err, errHelpShown) {
		t.Fatalf("expected help, got %v", err)
	}
	if !strings.Contains(stderr.String(), "--transport") {
		t.Fatalf("usage missing flags:\n%s", stderr.String())
	}
	_, showVersion, err := parseConfig([]string{"-v"}, &bytes.Buffer{}, noEnv)
	if err != nil || !showVersion {
		t.Fatalf("expected version request, got %v %v", showVersion, err)
	}
}

func TestRunPrintsVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(stdout.String()) == "" {
		t.Fatal("expected version output")
	}
}
