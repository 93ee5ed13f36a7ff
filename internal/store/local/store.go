// Package local implements a local filesystem artifact store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shadwo/mediadock/internal/media"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the directory holding download artifacts.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store keeps download artifacts as flat files named <id>.<ext> under a
// base directory. The modification time of each file is the sole signal
// the retention sweeper uses for expiry.
type Store struct {
	baseDir string
}

// New creates a new local filesystem-backed store, creating the base
// directory when needed and verifying it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// BaseDir returns the artifact directory, used by the fetcher for output.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// List enumerates all stored artifacts.
func (s *Store) List(_ context.Context) ([]media.ArtifactInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read artifact directory: %w", err)
	}
	artifacts := make([]media.ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// The sweeper may have raced us; skip the entry.
			continue
		}
		artifacts = append(artifacts, media.ArtifactInfo{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return artifacts, nil
}

// FindByID locates the artifact stored for id regardless of extension.
func (s *Store) FindByID(ctx context.Context, id string) (media.ArtifactInfo, bool, error) {
	artifacts, err := s.List(ctx)
	if err != nil {
		return media.ArtifactInfo{}, false, err
	}
	prefix := id + "."
	for _, artifact := range artifacts {
		if strings.HasPrefix(artifact.Name, prefix) {
			return artifact, true, nil
		}
	}
	return media.ArtifactInfo{}, false, nil
}

// Stat returns size and modification time for one artifact.
func (s *Store) Stat(_ context.Context, name string) (media.ArtifactInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return media.ArtifactInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return media.ArtifactInfo{}, fmt.Errorf("stat artifact: %w", err)
	}
	return media.ArtifactInfo{
		Name:       name,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// Delete removes one artifact.
func (s *Store) Delete(_ context.Context, name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Path resolves name to a path inside the base directory, rejecting
// traversal attempts.
func (s *Store) Path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	fullPath := filepath.Join(s.baseDir, name)
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if filepath.Dir(cleanFull) != cleanBase {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
