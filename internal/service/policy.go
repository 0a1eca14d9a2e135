package service

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// ResolutionPolicy maps field names to the auto-resolution strategy the
// host application configured for them. Fields without an entry always
// surface as unresolved conflicts pending manual resolution.
type ResolutionPolicy map[string]domain.ResolutionStrategy

// StrategyFor returns the configured strategy for a field, if any.
func (p ResolutionPolicy) StrategyFor(fieldName string) (domain.ResolutionStrategy, bool) {
	if p == nil {
		return "", false
	}
	strategy, ok := p[fieldName]
	return strategy, ok
}

type policyFile struct {
	Fields map[string]string `yaml:"fields"`
}

// LoadResolutionPolicy reads the per-field strategy table from a YAML file.
// An empty path yields an empty policy: every conflict goes to manual
// resolution.
func LoadResolutionPolicy(path string) (ResolutionPolicy, error) {
	if path == "" {
		return ResolutionPolicy{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var parsed policyFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	policy := make(ResolutionPolicy, len(parsed.Fields))
	for field, name := range parsed.Fields {
		strategy := domain.ResolutionStrategy(name)
		if !domain.ValidStrategy(strategy) {
			return nil, fmt.Errorf("policy file: unknown strategy %q for field %q", name, field)
		}
		policy[field] = strategy
	}
	return policy, nil
}
