package config

import (
	"fmt"
	"os"
	"strings"
)

// Profile is a loaded set of policy documents used in prompts.
type Profile struct {
	Name   string
	Skill  string
	Rubric string
}

// LoadProfiles reads every configured profile's documents. A missing or
// empty document is a configuration error.
func (c *Config) LoadProfiles() (map[string]Profile, error) {
	out := make(map[string]Profile, len(c.Profiles))
	for name, p := range c.Profiles {
		skill, err := readDocument(p.SkillPath)
		if err != nil {
			return nil, fmt.Errorf("config: profile %s: %w", name, err)
		}
		rubric, err := readDocument(p.RubricPath)
		if err != nil {
			return nil, fmt.Errorf("config: profile %s: %w", name, err)
		}
		out[name] = Profile{Name: name, Skill: skill, Rubric: rubric}
	}
	return out, nil
}

func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return text, nil
}

// Secret resolves a credential from a file (preferred) or an environment
// variable. The result is trimmed; empty values are an error.
func Secret(name, envVar, file string) (string, error) {
	if file = strings.TrimSpace(file); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("config: read %s from %q: %w", name, file, err)
		}
		v := strings.TrimSpace(string(data))
		if v == "" {
			return "", fmt.Errorf("config: %s file %q is empty", name, file)
		}
		return v, nil
	}
	if envVar == "" {
		return "", fmt.Errorf("config: %s is not configured", name)
	}
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return "", fmt.Errorf("config: %s is not configured (set %s)", name, envVar)
	}
	return v, nil
}
