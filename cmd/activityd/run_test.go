package main

import (
	"path/filepath"
	"testing"

	"github.com/goodtune/activityd/internal/config"
	"github.com/rs/zerolog"
)

func TestOpenStorage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{"sqlite", config.StorageConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "a.db")}, false},
		{"memory", config.StorageConfig{Type: "memory", Memory: config.MemoryConfig{Size: 10}}, false},
		{"unknown", config.StorageConfig{Type: "bolt"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStorage(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStorage failed: %v", err)
			}
			_ = store.Close()
		})
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogger(config.LoggingConfig{Level: "warn", Format: "text"})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("Expected warn level, got %s", zerolog.GlobalLevel())
	}

	setupLogger(config.LoggingConfig{Level: "bogus", Format: "json"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("Expected fallback to info, got %s", zerolog.GlobalLevel())
	}
}
