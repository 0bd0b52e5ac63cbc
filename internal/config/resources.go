package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resource maps one gateway route to one partner API path.
type Resource struct {
	// Name labels the resource in errors ("Failed to fetch <name>") and metrics.
	Name string `yaml:"name"`
	// Path is the gateway route, e.g. /api/users.
	Path string `yaml:"path"`
	// Upstream is the partner API path. Defaults to Path.
	Upstream string `yaml:"upstream"`
}

// ErrorMessage is the fixed client-facing failure text.
func (r Resource) ErrorMessage() string {
	return "Failed to fetch " + r.Name
}

type resourcesFile struct {
	Resources []Resource `yaml:"resources"`
}

// DefaultResources are the partner resources the front-end reads.
func DefaultResources() []Resource {
	return []Resource{
		{Name: "users", Path: "/api/users", Upstream: "/api/users"},
		{Name: "companies", Path: "/api/companies", Upstream: "/api/companies"},
	}
}

// Resources returns the partner resource table: the YAML file if configured,
// the defaults otherwise.
func (c *Config) Resources() ([]Resource, error) {
	if c.ResourcesFile == "" {
		return DefaultResources(), nil
	}
	return LoadResources(c.ResourcesFile)
}

// LoadResources reads a resource table from a YAML file.
func LoadResources(path string) ([]Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resources file %s: %w", path, err)
	}
	return ParseResources(data)
}

// ParseResources parses and validates a YAML resource table.
func ParseResources(data []byte) ([]Resource, error) {
	var f resourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing resources: %w", err)
	}
	if len(f.Resources) == 0 {
		return nil, fmt.Errorf("resources file contains no resources")
	}

	seen := make(map[string]bool, len(f.Resources))
	for i := range f.Resources {
		r := &f.Resources[i]
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, fmt.Errorf("resource %d: name is required", i)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("resource %q: path must start with /", r.Name)
		}
		if r.Upstream == "" {
			r.Upstream = r.Path
		}
		if !strings.HasPrefix(r.Upstream, "/") {
			return nil, fmt.Errorf("resource %q: upstream must start with /", r.Name)
		}
		if seen[r.Path] {
			return nil, fmt.Errorf("resource %q: duplicate path %s", r.Name, r.Path)
		}
		seen[r.Path] = true
	}
	return f.Resources, nil
}
