package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/creditgate/creditgate/internal/core"
)

// TableFormatter renders approvals as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatApprovals(entries []core.ApprovalEntry) (string, error) {
	return approvalsTable(entries).Render(), nil
}

func (f *TableFormatter) FormatDecision(entry core.ApprovalEntry) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Identity", entry.Identity},
		{"Approval", entry.Record.ID},
		{"Status", string(entry.Record.Status)},
		{"Amount", formatAmount(entry)},
		{"Created", formatCreated(entry)},
	})
	return t.Render(), nil
}

func approvalsTable(entries []core.ApprovalEntry) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Identity", "Approval", "Status", "Amount", "Created"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
	})

	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Identity,
			entry.Record.ID,
			string(entry.Record.Status),
			formatAmount(entry),
			formatCreated(entry),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d approval(s)", len(entries))})
	return t
}
