package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creditgate/creditgate/internal/core"
)

func TestRequestFromFlags(t *testing.T) {
	raw, err := requestFromFlags("sme", "", "4235.45", "800", "2025-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.BusinessKind != "sme" {
		t.Fatalf("business kind = %q", raw.BusinessKind)
	}
	if raw.CashBalance != nil {
		t.Fatalf("empty cash balance should stay unset, got %s", raw.CashBalance)
	}
	if raw.MonthlyRevenue == nil || raw.MonthlyRevenue.String() != "4235.45" {
		t.Fatalf("monthly revenue = %v", raw.MonthlyRevenue)
	}
	if raw.RequestedAmount == nil || raw.RequestedAmount.String() != "800" {
		t.Fatalf("requested amount = %v", raw.RequestedAmount)
	}
	if raw.RequestedAt == nil || raw.RequestedAt.Year() != 2025 {
		t.Fatalf("requested at = %v", raw.RequestedAt)
	}
}

func TestRequestFromFlagsRejectsMalformedValues(t *testing.T) {
	cases := []struct {
		name      string
		cash      string
		at        string
		wantField string
	}{
		{"decimal", "12,50", "", "cash_balance"},
		{"timestamp", "", "yesterday", "requested_at"},
	}

	for _, tc := range cases {
		_, err := requestFromFlags("STARTUP", tc.cash, "100", "10", tc.at)
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if verr.Field != tc.wantField {
			t.Fatalf("%s: field = %q, want %q", tc.name, verr.Field, tc.wantField)
		}
	}
}

func TestReadRequestFileFromStdin(t *testing.T) {
	body := `{"business_kind":"STARTUP","cash_balance":"600","monthly_revenue":"1000","requested_amount":"200"}`
	raw, err := readRequestFile("-", strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.CashBalance == nil || raw.CashBalance.String() != "600" {
		t.Fatalf("cash balance = %v", raw.CashBalance)
	}

	_, err = readRequestFile("-", strings.NewReader("{"))
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error for broken JSON, got %v", err)
	}

	_, err = readRequestFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestEvaluateCommandWithMemoryStore(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	out := filepath.Join(t.TempDir(), "decision.json")
	rootCmd.SetArgs([]string{
		"evaluate",
		"--identity", "203.0.113.7",
		"--business-kind", "SME",
		"--monthly-revenue", "1000",
		"--requested-amount", "150",
		"--requested-at", "2025-03-01T12:00:00Z",
		"--store", "memory",
		"--output-format", "json",
		"--out", out,
	})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := Execute(); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var entry core.ApprovalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode output: %v\n%s", err, string(data))
	}
	if entry.Identity != "203.0.113.7" {
		t.Fatalf("identity = %q", entry.Identity)
	}
	if entry.Record.Status != core.ApprovalStatusApproved {
		t.Fatalf("status = %q", entry.Record.Status)
	}
	if entry.Record.ApprovedAmount.String() != "150" {
		t.Fatalf("approved amount = %s", entry.Record.ApprovedAmount)
	}
}
