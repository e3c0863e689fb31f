package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Manifest maps project IDs to their repositories so one orchestrator
// install can drive runs across many repos.
type Manifest struct {
	WorkspaceRoot string             `koanf:"workspace_root"`
	Projects      map[string]Project `koanf:"projects"`
}

// Project describes one target repository in the manifest.
type Project struct {
	Repo       string `koanf:"repo"` // owner/name slug
	CloneURL   string `koanf:"clone_url"`
	LocalPath  string `koanf:"local_path"`
	Config     string `koanf:"config"` // project config overlay, relative to manifest dir
	BaseBranch string `koanf:"base_branch"`
}

// LoadManifest reads a projects manifest from a JSON or YAML file.
func LoadManifest(path string) (*Manifest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", path, err)
	}
	var m Manifest
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if len(m.Projects) == 0 {
		return nil, fmt.Errorf("manifest %s defines no projects", path)
	}
	return &m, nil
}

// Lookup returns the named project or an error listing what exists.
func (m *Manifest) Lookup(id string) (Project, error) {
	p, ok := m.Projects[id]
	if !ok {
		ids := make([]string, 0, len(m.Projects))
		for k := range m.Projects {
			ids = append(ids, k)
		}
		return Project{}, fmt.Errorf("project %q not in manifest (have: %v)", id, ids)
	}
	return p, nil
}
