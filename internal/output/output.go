package output

import (
	"fmt"
	"strings"

	"github.com/creditgate/creditgate/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formatter renders approvals for the CLI.
type Formatter interface {
	// FormatApprovals renders a listing; an empty slice still renders.
	FormatApprovals(entries []core.ApprovalEntry) (string, error)
	// FormatDecision renders one approval produced by evaluate.
	FormatDecision(entry core.ApprovalEntry) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func formatAmount(entry core.ApprovalEntry) string {
	return entry.Record.ApprovedAmount.StringFixed(2)
}

func formatCreated(entry core.ApprovalEntry) string {
	if entry.Record.CreatedAt.IsZero() {
		return ""
	}
	return entry.Record.CreatedAt.UTC().Format("2006-01-02 15:04:05Z07:00")
}
