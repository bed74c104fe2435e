package config

import (
	"fmt"
	"os"

	"github.com/veilcash/pullauth/pkg/permit"
	"gopkg.in/yaml.v3"
)

// LoadDomainProfile loads the signing-domain profile from a YAML file.
// The domain scopes permit signatures to one deployment; changing any
// field invalidates every outstanding permit, so it lives in a file
// under change control, not in env vars.
func LoadDomainProfile(path string) (permit.SigningDomain, error) {
	var domain permit.SigningDomain
	data, err := os.ReadFile(path)
	if err != nil {
		return domain, fmt.Errorf("load domain profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &domain); err != nil {
		return domain, fmt.Errorf("parse domain profile %q: %w", path, err)
	}
	if domain.Name == "" || domain.Version == "" {
		return domain, fmt.Errorf("domain profile %q: name and version are required", path)
	}
	return domain, nil
}
