package output

import (
	"fmt"
	"strings"

	"github.com/creditgate/creditgate/internal/core"
)

// MarkdownFormatter renders approvals as a markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatApprovals(entries []core.ApprovalEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Approvals\n\n")
	sb.WriteString(approvalsTable(entries).RenderMarkdown())
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatDecision(entry core.ApprovalEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Approval for %s\n\n", escapeMarkdownCell(entry.Identity)))
	sb.WriteString(fmt.Sprintf("- **ID**: %s\n", escapeMarkdownCell(entry.Record.ID)))
	sb.WriteString(fmt.Sprintf("- **Status**: %s\n", entry.Record.Status))
	sb.WriteString(fmt.Sprintf("- **Amount**: %s\n", formatAmount(entry)))
	sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatCreated(entry)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
