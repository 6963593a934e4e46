package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/simp-lee/logger"
)

func boolPtr(b bool) *bool { return &b }

func TestSetupLogger_NilConfig(t *testing.T) {
	if _, err := SetupLogger(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestSetupLogger_LevelMapping(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"invalid defaults to info", "invalid", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := SetupLogger(&LogConfig{Level: tt.level, Format: "text"})
			if err != nil {
				t.Fatalf("SetupLogger error: %v", err)
			}
			defer log.Close()

			if !log.Enabled(context.TODO(), tt.wantLevel) {
				t.Errorf("expected level %v to be enabled", tt.wantLevel)
			}
			if tt.wantLevel > slog.LevelDebug && log.Enabled(context.TODO(), tt.wantLevel-1) {
				t.Errorf("expected level %v to be disabled", tt.wantLevel-1)
			}
		})
	}
}

func TestSetupLogger_SetsDefault(t *testing.T) {
	log, err := SetupLogger(&LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("SetupLogger error: %v", err)
	}
	defer log.Close()

	if slog.Default().Handler() != log.Handler() {
		t.Error("SetupLogger did not set slog.Default()")
	}
}

func TestBuildLoggerOpts(t *testing.T) {
	// Level, Middleware, ConsoleFormat, ConsoleColor.
	const baseCount = 4
	// FilePath + FileFormat.
	const fileBaseCount = baseCount + 2

	tests := []struct {
		name      string
		cfg       *LogConfig
		wantNil   bool
		wantCount int
	}{
		{name: "nil config", cfg: nil, wantNil: true},
		{name: "console text", cfg: &LogConfig{Level: "debug", Format: "text"}, wantCount: baseCount},
		{name: "console json no color", cfg: &LogConfig{Level: "info", Format: "json", Color: boolPtr(false)}, wantCount: baseCount},
		{name: "unknown format", cfg: &LogConfig{Level: "info", Format: "whatever"}, wantCount: baseCount},
		{name: "file output", cfg: &LogConfig{Level: "info", Format: "json", FilePath: "/tmp/userdir.log"}, wantCount: fileBaseCount},
		{
			name: "file with one rotation field",
			cfg: &LogConfig{
				Level: "info", Format: "text", FilePath: "/tmp/userdir.log",
				MaxBackups: 3,
			},
			wantCount: fileBaseCount + 1,
		},
		{
			name: "file with all rotation fields",
			cfg: &LogConfig{
				Level: "info", Format: "json", FilePath: "/tmp/userdir.log",
				MaxSizeMB: 50, RetentionDays: 30, MaxBackups: 5,
				CompressRotated: boolPtr(false),
			},
			wantCount: fileBaseCount + 4,
		},
		{
			name: "rotation fields ignored without file",
			cfg: &LogConfig{
				Level: "info", Format: "text",
				MaxSizeMB: 50, RetentionDays: 30,
			},
			wantCount: baseCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := buildLoggerOpts(tt.cfg)
			if tt.wantNil {
				if opts != nil {
					t.Fatalf("expected nil, got %d options", len(opts))
				}
				return
			}
			if len(opts) != tt.wantCount {
				t.Errorf("option count = %d, want %d", len(opts), tt.wantCount)
			}
		})
	}
}

func TestBuildLoggerOpts_ProducesValidLogger(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "userdir.log")

	log, err := logger.New(buildLoggerOpts(&LogConfig{
		Level: "info", Format: "json", FilePath: filePath,
		MaxSizeMB: 10, RetentionDays: 7, MaxBackups: 3,
		CompressRotated: boolPtr(true),
	})...)
	if err != nil {
		t.Fatalf("logger.New failed: %v", err)
	}
	defer log.Close()

	log.Info("directory loaded", slog.Int("users", 10))
}
