// Package appid holds the static application identity shared by the CLI, the
// config loader and telemetry.
package appid

import "strings"

// Identity describes the binary.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
	Namespace   string
}

var current = Identity{
	BinaryName:  "creditgate",
	ConfigName:  "creditgate",
	EnvPrefix:   "CREDITGATE_",
	Description: "Credit line gating service",
	Namespace:   "creditgate",
}

// Get returns the application identity.
func Get() Identity {
	return current
}

// EnvKey prefixes name with the environment prefix.
func (i Identity) EnvKey(name string) string {
	prefix := i.EnvPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix + strings.ToUpper(name)
}

// ViperPrefix is EnvPrefix without the trailing underscore, as viper expects.
func (i Identity) ViperPrefix() string {
	return strings.TrimSuffix(i.EnvPrefix, "_")
}

// TelemetryNamespace returns the metric namespace, falling back to the binary name.
func (i Identity) TelemetryNamespace() string {
	if strings.TrimSpace(i.Namespace) != "" {
		return i.Namespace
	}
	return i.BinaryName
}
