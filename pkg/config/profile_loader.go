package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

// RequirementsProfile is a named quality-gate threshold set, loaded from a
// profile_<name>.yaml file. Teams keep one profile per pipeline strictness
// level (e.g. "strict" for release branches, "relaxed" for experiments).
type RequirementsProfile struct {
	Name         string                            `yaml:"name" json:"name"`
	Description  string                            `yaml:"description,omitempty" json:"description,omitempty"`
	Requirements contracts.QualityGateRequirements `yaml:"requirements" json:"requirements"`
}

// LoadProfile loads a requirements profile by name. It searches the profiles
// directory for profile_<name>.yaml.
func LoadProfile(profilesDir, name string) (*RequirementsProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile RequirementsProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}

	if profile.Name == "" {
		profile.Name = name
	}
	if err := validateProfile(&profile); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}

	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml file from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*RequirementsProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*RequirementsProfile, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		profile, err := LoadProfile(profilesDir, name)
		if err != nil {
			return nil, err
		}
		profiles[name] = profile
	}
	return profiles, nil
}

func validateProfile(p *RequirementsProfile) error {
	r := p.Requirements
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"min_pass_rate", r.MinPassRate},
		{"min_contract_coverage", r.MinContractCoverage},
		{"min_scenario_coverage", r.MinScenarioCoverage},
		{"min_resource_compliance", r.MinResourceCompliance},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", f.name, f.value)
		}
	}
	if r.MaxErrors < 0 {
		return fmt.Errorf("max_errors must be >= 0, got %d", r.MaxErrors)
	}
	return nil
}
