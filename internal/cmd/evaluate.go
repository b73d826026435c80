package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/core"
	"github.com/creditgate/creditgate/internal/observability"
	"github.com/creditgate/creditgate/internal/output"
)

var (
	evaluateIdentity        string
	evaluateRequestFile     string
	evaluateBusinessKind    string
	evaluateCashBalance     string
	evaluateMonthlyRevenue  string
	evaluateRequestedAmount string
	evaluateRequestedAt     string
	evaluateStoreDriver     string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Decide one credit request against the configured store",
	Long: `Decide one credit request without starting the server.

The request comes from --request (a JSON body, "-" for stdin) or from the
individual flags. Approvals are written to the configured store, so an
identity that was already approved gets its stored approval back.

Failure counting only lives for the duration of the command.`,
	Example: `  creditgate evaluate --identity 203.0.113.7 --business-kind SME \
    --monthly-revenue 4235.45 --requested-amount 800 --requested-at 2025-03-01T12:00:00Z
  creditgate evaluate --identity 203.0.113.7 --request body.json --store memory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := strings.TrimSpace(evaluateIdentity)
		if identity == "" {
			return fmt.Errorf("--identity is required")
		}

		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		raw, err := evaluateRequest(cmd.InOrStdin())
		if err != nil {
			return err
		}

		overrides := map[string]any{}
		if driver := strings.TrimSpace(evaluateStoreDriver); driver != "" {
			overrides["store.driver"] = driver
		}
		cfg, err := loadConfig(cmd.Context(), overrides)
		if err != nil {
			return err
		}

		svc, err := buildService(cmd.Context(), cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer svc.Close() // nolint:errcheck // best-effort cleanup

		record, err := svc.engine.Evaluate(cmd.Context(), identity, raw)
		if err != nil {
			if observability.CLILogger != nil {
				observability.CLILogger.Debug("Credit request not approved",
					zap.String("identity", identity), zap.Error(err))
			}
			return err
		}

		path, err := sinkPath(cmd, format, "decision."+identity)
		if err != nil {
			return err
		}
		sink, err := openSink(path)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatDecision(core.ApprovalEntry{Identity: identity, Record: *record})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, strings.TrimRight(rendered, "\n"))
		return err
	},
}

// evaluateRequest builds the raw request from --request or the field flags.
func evaluateRequest(stdin io.Reader) (core.RawCreditRequest, error) {
	if path := strings.TrimSpace(evaluateRequestFile); path != "" {
		return readRequestFile(path, stdin)
	}
	return requestFromFlags(evaluateBusinessKind, evaluateCashBalance, evaluateMonthlyRevenue, evaluateRequestedAmount, evaluateRequestedAt)
}

func readRequestFile(path string, stdin io.Reader) (core.RawCreditRequest, error) {
	var reader io.Reader
	if path == "-" {
		reader = stdin
	} else {
		file, err := os.Open(path) // #nosec G304 -- user-supplied request file
		if err != nil {
			return core.RawCreditRequest{}, fmt.Errorf("open request file: %w", err)
		}
		defer file.Close() // nolint:errcheck // read-only
		reader = file
	}

	var raw core.RawCreditRequest
	if err := json.NewDecoder(reader).Decode(&raw); err != nil {
		return core.RawCreditRequest{}, core.NewValidationError("", fmt.Sprintf("request body is not valid JSON: %v", err))
	}
	return raw, nil
}

// requestFromFlags leaves empty flags unset so the engine reports them as
// missing fields.
func requestFromFlags(kind, cash, revenue, requested, at string) (core.RawCreditRequest, error) {
	raw := core.RawCreditRequest{BusinessKind: kind}

	fields := []struct {
		name  string
		value string
		dest  **decimal.Decimal
	}{
		{"cash_balance", cash, &raw.CashBalance},
		{"monthly_revenue", revenue, &raw.MonthlyRevenue},
		{"requested_amount", requested, &raw.RequestedAmount},
	}
	for _, field := range fields {
		value := strings.TrimSpace(field.value)
		if value == "" {
			continue
		}
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return core.RawCreditRequest{}, core.NewValidationError(field.name, "must be a decimal number")
		}
		*field.dest = &parsed
	}

	if value := strings.TrimSpace(at); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return core.RawCreditRequest{}, core.NewValidationError("requested_at", "must be an RFC 3339 timestamp")
		}
		raw.RequestedAt = &parsed
	}

	return raw, nil
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateIdentity, "identity", "", "Client identity the request is decided for (required)")
	evaluateCmd.Flags().StringVar(&evaluateRequestFile, "request", "", "JSON request body file, - for stdin")
	evaluateCmd.Flags().StringVar(&evaluateBusinessKind, "business-kind", "", "STARTUP or SME")
	evaluateCmd.Flags().StringVar(&evaluateCashBalance, "cash-balance", "", "Cash balance (startups)")
	evaluateCmd.Flags().StringVar(&evaluateMonthlyRevenue, "monthly-revenue", "", "Monthly revenue")
	evaluateCmd.Flags().StringVar(&evaluateRequestedAmount, "requested-amount", "", "Requested credit line")
	evaluateCmd.Flags().StringVar(&evaluateRequestedAt, "requested-at", "", "Request timestamp (RFC 3339)")
	evaluateCmd.Flags().StringVar(&evaluateStoreDriver, "store", "", "Override store.driver (libsql|redis|memory)")
	addOutputFlags(evaluateCmd, output.FormatTable)
}
