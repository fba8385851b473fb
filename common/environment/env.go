// Package environment provides helpers for loading configuration from environment variables.
//
// Values are looked up in the process environment first. A Source may also
// carry an overlay loaded from a flat YAML file; overlay values are used only
// when the variable is absent from the environment. Required variables return
// an error rather than calling os.Exit, keeping business logic out of library code.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source resolves configuration keys against the environment and an optional
// file overlay.
type Source struct {
	overlay map[string]string
}

// Env is a Source backed only by the process environment.
var Env = &Source{}

// FromFile loads a YAML document of scalar key/value pairs, e.g.
//
//	COORDINATOR_HOST: 10.0.0.4
//	COORDINATOR_PORT: 8020
//	FORCE_CHECKPOINT_SIMULATION: false
//
// and returns a Source that falls back to it. An empty path yields Env.
func FromFile(path string) (*Source, error) {
	if path == "" {
		return Env, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return FromYAML(data)
}

// FromYAML parses an overlay document. Non-scalar values are rejected.
func FromYAML(data []byte) (*Source, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	overlay := make(map[string]string, len(raw))
	for k, node := range raw {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("config key %q: expected a scalar value", k)
		}
		overlay[k] = node.Value
	}
	return &Source{overlay: overlay}, nil
}

// String returns the value of the named variable and a boolean indicating
// whether it was set (even if set to the empty string).
func (s *Source) String(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	v, ok := s.overlay[name]
	return v, ok
}

func (s *Source) get(name string) string {
	v, _ := s.String(name)
	return v
}

// StringOr returns the value of the named variable, or defaultValue if the
// variable is unset or empty.
func (s *Source) StringOr(name, defaultValue string) string {
	if v := s.get(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the value of the named variable or an error if it is
// unset or empty.
func (s *Source) RequiredString(name string) (string, error) {
	v := s.get(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named variable as a boolean. Recognized values are the
// same as strconv.ParseBool. Returns defaultValue if the variable is unset,
// empty, or cannot be parsed.
func (s *Source) BoolOr(name string, defaultValue bool) bool {
	v := s.get(name)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses the named variable as a decimal integer.
func (s *Source) IntOr(name string, defaultValue int) int {
	v := s.get(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses the named variable as a time.Duration (e.g. "30s").
func (s *Source) DurationOr(name string, defaultValue time.Duration) time.Duration {
	v := s.get(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr parses the named variable as a comma-separated list, trimming
// whitespace from each element.
func (s *Source) StringSliceOr(name string, defaultValue []string) []string {
	v := s.get(name)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
