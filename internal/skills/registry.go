// Package skills loads and tracks skill manifests. A skill is a
// directory under the skills root containing a manifest.json or
// manifest.yaml describing the tools it provides.
package skills

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/clawmate/clawmate/pkg/models"
)

// Skill describes one loaded skill manifest.
type Skill struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Description  string   `json:"description" yaml:"description"`
	Author       string   `json:"author,omitempty" yaml:"author,omitempty"`
	Tools        []string `json:"tools" yaml:"tools"`
	Entrypoint   string   `json:"entrypoint" yaml:"entrypoint"`
	ManifestPath string   `json:"manifest_path" yaml:"-"`
}

// Status summarizes registry contents for the system endpoints.
type Status struct {
	LoadedSkills   int              `json:"loaded_skills"`
	AvailableTools int              `json:"available_tools"`
	Skills         map[string]Skill `json:"skills"`
}

// Registry holds the loaded skills, keyed by directory name.
type Registry struct {
	dir string

	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates a registry rooted at dir. Call Load to populate it.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		skills: make(map[string]Skill),
	}
}

// Dir returns the skills root directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Load scans the skills directory and replaces the registry contents.
// A missing root directory is not an error; it yields an empty registry.
// Individual broken manifests are skipped with a log line so one bad
// skill never blocks the rest.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[skills] directory %s does not exist", r.dir)
			r.mu.Lock()
			r.skills = make(map[string]Skill)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading skills directory: %w", err)
	}

	loaded := make(map[string]Skill)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skill, err := loadManifest(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			log.Printf("[skills] skipping %s: %v", entry.Name(), err)
			continue
		}
		if skill.Name == "" {
			skill.Name = entry.Name()
		}
		loaded[entry.Name()] = skill
	}

	r.mu.Lock()
	r.skills = loaded
	r.mu.Unlock()

	log.Printf("[skills] loaded %d skills from %s", len(loaded), r.dir)
	return nil
}

// Get returns the skill registered under the given directory name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Has reports whether a skill is registered under the given name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all loaded skills sorted by name.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tools returns the union of all tools across loaded skills, sorted.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, s := range r.skills {
		for _, tool := range s.Tools {
			seen[tool] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tool := range seen {
		out = append(out, tool)
	}
	sort.Strings(out)
	return out
}

// ByTool finds the skill providing a tool.
func (r *Registry) ByTool(tool string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.skills {
		for _, t := range s.Tools {
			if t == tool {
				return s, true
			}
		}
	}
	return Skill{}, false
}

// Status returns a snapshot of registry contents.
func (r *Registry) Status() Status {
	r.mu.RLock()
	skills := make(map[string]Skill, len(r.skills))
	for name, s := range r.skills {
		skills[name] = s
	}
	r.mu.RUnlock()

	return Status{
		LoadedSkills:   len(skills),
		AvailableTools: len(r.Tools()),
		Skills:         skills,
	}
}

// Command returns the execution request for a skill's entrypoint,
// rooted at the skill's directory. Skills without an entrypoint are not
// runnable.
func (r *Registry) Command(name string) (models.ExecutionRequest, error) {
	s, ok := r.Get(name)
	if !ok {
		return models.ExecutionRequest{}, fmt.Errorf("skill not found: %s", name)
	}
	if s.Entrypoint == "" {
		return models.ExecutionRequest{}, fmt.Errorf("skill %s has no entrypoint", name)
	}
	return models.ExecutionRequest{
		Command: s.Entrypoint,
		Cwd:     filepath.Dir(s.ManifestPath),
	}, nil
}

// loadManifest reads manifest.json or manifest.yaml from a skill directory.
func loadManifest(skillDir string) (Skill, error) {
	jsonPath := filepath.Join(skillDir, "manifest.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		var s Skill
		if err := json.Unmarshal(data, &s); err != nil {
			return Skill{}, fmt.Errorf("parsing %s: %w", jsonPath, err)
		}
		s.ManifestPath = jsonPath
		return s, nil
	}

	for _, name := range []string{"manifest.yaml", "manifest.yml"} {
		yamlPath := filepath.Join(skillDir, name)
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			continue
		}
		var s Skill
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Skill{}, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
		s.ManifestPath = yamlPath
		return s, nil
	}

	return Skill{}, fmt.Errorf("no manifest found in %s", skillDir)
}
