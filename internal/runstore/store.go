// Package runstore manages the per-run artifact directory where the
// pipeline drops prompts, agent outputs, gate logs, and status files.
package runstore

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TimestampFormat is the run timestamp used in directory names and
// evidence paths. Kept filesystem-safe: no colons.
const TimestampFormat = "20060102-150405"

// Dir is a single run's artifact directory.
type Dir struct {
	Path      string
	Namespace string
	Issue     int
	Timestamp string
}

// Create makes a fresh run directory under
// <baseDir>/.agent/runs/<namespace>/<timestamp>-issue-<n>.
// Creation is exclusive so two runs started in the same second fail
// loudly instead of sharing artifacts.
func Create(baseDir, namespace string, issue int, now time.Time) (*Dir, error) {
	if issue <= 0 {
		return nil, fmt.Errorf("invalid issue number %d: must be positive", issue)
	}
	if namespace == "" {
		namespace = "default"
	}
	ts := now.Format(TimestampFormat)
	path := filepath.Join(baseDir, ".agent", "runs", namespace, fmt.Sprintf("%s-issue-%d", ts, issue))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create runs dir: %w", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir %s: %w", path, err)
	}
	return &Dir{Path: path, Namespace: namespace, Issue: issue, Timestamp: ts}, nil
}

// Open wraps an existing run directory.
func Open(path, namespace string, issue int, timestamp string) *Dir {
	return &Dir{Path: path, Namespace: namespace, Issue: issue, Timestamp: timestamp}
}

// ArtifactPath returns the absolute path for a named artifact.
func (d *Dir) ArtifactPath(name string) string {
	return filepath.Join(d.Path, name)
}

// WriteArtifact writes an artifact file, creating subdirectories as
// needed for names like "ui-evidence/shot.png".
func (d *Dir) WriteArtifact(name string, data []byte) error {
	path := d.ArtifactPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir for %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// ReadArtifact reads a named artifact.
func (d *Dir) ReadArtifact(name string) ([]byte, error) {
	data, err := os.ReadFile(d.ArtifactPath(name))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// HasArtifact reports whether a named artifact exists.
func (d *Dir) HasArtifact(name string) bool {
	_, err := os.Stat(d.ArtifactPath(name))
	return err == nil
}

// WriteJSON writes an artifact as indented JSON.
func (d *Dir) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return d.WriteArtifact(name, append(data, '\n'))
}

// ListFiles returns all artifact paths relative to the run directory,
// sorted, walking subdirectories.
func (d *Dir) ListFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(d.Path, path)
		if rerr != nil {
			return rerr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run artifacts: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
