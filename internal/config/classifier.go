// Package config classifies YAML worker configs as client or server
// and discovers the set of configs a manager invocation should run.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gotunnel/gt/internal/descriptor"
)

// loose is the minimal shape the classifier inspects. Any other
// top-level fields in the document are preserved on disk but are not
// read by the core.
type loose struct {
	Type     string `yaml:"type"`
	Services []any  `yaml:"services"`
}

// Classify decides whether a YAML document describes a client or a
// server config, per this precedence:
//
//  1. If "services" is present (any list, including empty) -> client.
//  2. Else if "type" is "client" -> client; "server" -> server; any
//     other non-empty string -> error.
//  3. Else -> server.
func Classify(doc []byte) (descriptor.Role, error) {
	var l loose
	// A zero-length document decodes to the zero value, which is
	// "no services, no type" -> server, matching the default case.
	if len(doc) > 0 {
		if err := yaml.Unmarshal(doc, &l); err != nil {
			return descriptor.RoleServer, fmt.Errorf("config: parsing YAML: %w", err)
		}
	}

	if l.Services != nil {
		return descriptor.RoleClient, nil
	}

	switch l.Type {
	case "":
		return descriptor.RoleServer, nil
	case "client":
		return descriptor.RoleClient, nil
	case "server":
		return descriptor.RoleServer, nil
	default:
		return descriptor.RoleServer, fmt.Errorf("config: invalid config type %q", l.Type)
	}
}
