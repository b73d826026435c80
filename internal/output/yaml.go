package output

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/creditgate/creditgate/internal/core"
)

// YAMLFormatter renders approvals as YAML documents.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatApprovals(entries []core.ApprovalEntry) (string, error) {
	if entries == nil {
		entries = []core.ApprovalEntry{}
	}
	return marshalYAML(entries)
}

func (f *YAMLFormatter) FormatDecision(entry core.ApprovalEntry) (string, error) {
	return marshalYAML(entry)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
