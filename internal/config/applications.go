package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
	"oauth2-client/internal/common/validation"
	"oauth2-client/internal/oauth2"
)

// ApplicationRegistry is the YAML file listing the applications the process
// may talk to:
//
//	applications:
//	  - name: billing
//	    client_id: billing-client
//	    client_secret: ${BILLING_SECRET}
//	    grant_type: client-credentials
//	    service_host: https://billing.example.com/api/
//	    token_uri: https://auth.example.com/oauth/token
//	    scope: read write
//	  - name: crm
//	    client_id: crm-client
//	    client_secret: /etc/oauth2/crm.pem
//	    grant_type: jwt-bearer
//	    service_host: https://crm.example.com/
//	    token_uri: https://login.example.com/services/oauth2/token
//	    extra_settings:
//	      subject: integration@example.com
type ApplicationRegistry struct {
	Applications []ApplicationEntry `yaml:"applications"`
}

// ApplicationEntry is one application as written in the registry file.
type ApplicationEntry struct {
	Name          string               `yaml:"name" validate:"required"`
	ClientID      string               `yaml:"client_id" validate:"required"`
	ClientSecret  string               `yaml:"client_secret" validate:"required"`
	GrantType     string               `yaml:"grant_type" validate:"required,oneof=client-credentials jwt-bearer"`
	ServiceHost   string               `yaml:"service_host" validate:"required,absolute_url"`
	TokenURI      string               `yaml:"token_uri" validate:"required,absolute_url"`
	Scope         string               `yaml:"scope"`
	ExtraSettings oauth2.ExtraSettings `yaml:"extra_settings"`
}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references. A bare $ is left alone so secrets
// containing dollar signs survive.
func expandEnv(value string) string {
	return envReference.ReplaceAllStringFunc(value, func(ref string) string {
		return os.Getenv(envReference.FindStringSubmatch(ref)[1])
	})
}

// LoadApplications reads and validates the registry at path.
func LoadApplications(path string) ([]*oauth2.Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read applications file %s: %w", path, err)
	}
	return ParseApplications(data)
}

// ParseApplications decodes a registry document. Unknown keys are rejected.
// Every entry is checked field by field and then by Application.Validate.
func ParseApplications(data []byte) ([]*oauth2.Application, error) {
	var registry ApplicationRegistry

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&registry); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse applications file: %w", err)
	}

	v := validation.New()
	seen := make(map[string]bool, len(registry.Applications))
	apps := make([]*oauth2.Application, 0, len(registry.Applications))
	for i, entry := range registry.Applications {
		if err := v.Struct(entry); err != nil {
			return nil, fmt.Errorf("application #%d (%s): %w", i+1, entry.Name, err)
		}
		app := entry.toApplication()
		if err := app.Validate(); err != nil {
			return nil, fmt.Errorf("application #%d (%s): %w", i+1, entry.Name, err)
		}
		if seen[app.Name] {
			return nil, fmt.Errorf("application %s is defined more than once", app.Name)
		}
		seen[app.Name] = true
		apps = append(apps, app)
	}

	return apps, nil
}

func (e ApplicationEntry) toApplication() *oauth2.Application {
	return &oauth2.Application{
		Name:          e.Name,
		ClientID:      expandEnv(e.ClientID),
		ClientSecret:  expandEnv(e.ClientSecret),
		GrantType:     oauth2.GrantType(e.GrantType),
		ServiceHost:   e.ServiceHost,
		TokenURI:      e.TokenURI,
		Scope:         e.Scope,
		ExtraSettings: e.ExtraSettings,
	}
}
