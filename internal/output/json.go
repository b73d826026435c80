package output

import (
	"encoding/json"

	"github.com/creditgate/creditgate/internal/core"
)

// JSONFormatter renders approvals as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatApprovals(entries []core.ApprovalEntry) (string, error) {
	if entries == nil {
		entries = []core.ApprovalEntry{}
	}
	return f.marshal(entries)
}

func (f *JSONFormatter) FormatDecision(entry core.ApprovalEntry) (string, error) {
	return f.marshal(entry)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
