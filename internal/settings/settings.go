// Package settings supplies user-tunable values that are read fresh on every use.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultIdleThreshold applies when the settings file does not set one.
const DefaultIdleThreshold = 5 * time.Minute

// ThresholdProvider returns the current idle threshold.
type ThresholdProvider interface {
	IdleThreshold() (time.Duration, error)
}

// Static is a fixed idle threshold.
type Static time.Duration

// IdleThreshold returns the fixed threshold.
func (s Static) IdleThreshold() (time.Duration, error) {
	return time.Duration(s), nil
}

type yamlSettings struct {
	IdleThreshold string `yaml:"idle_threshold"`
}

// File reads settings from a YAML file. Nothing is cached, so edits to the
// file take effect on the next read.
type File struct {
	path string
}

// NewFile returns settings backed by the YAML file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the settings file location.
func (f *File) Path() string {
	return f.path
}

// IdleThreshold reads the idle threshold from disk.
// A missing file or empty value yields DefaultIdleThreshold.
func (f *File) IdleThreshold() (time.Duration, error) {
	rawData, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultIdleThreshold, nil
		}
		return 0, fmt.Errorf("read settings file: %w", err)
	}

	var fileData yamlSettings
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return 0, fmt.Errorf("parse settings yaml: %w", err)
	}

	if fileData.IdleThreshold == "" {
		return DefaultIdleThreshold, nil
	}

	threshold, err := time.ParseDuration(fileData.IdleThreshold)
	if err != nil {
		return 0, fmt.Errorf("parse idle_threshold: %w", err)
	}
	if threshold <= 0 {
		return 0, fmt.Errorf("idle_threshold must be positive, got %s", threshold)
	}

	return threshold, nil
}

// SaveIdleThreshold writes threshold to the settings file.
func (f *File) SaveIdleThreshold(threshold time.Duration) error {
	if threshold <= 0 {
		return fmt.Errorf("idle_threshold must be positive, got %s", threshold)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	serialized, err := yaml.Marshal(yamlSettings{IdleThreshold: threshold.String()})
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := os.WriteFile(f.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	return nil
}
