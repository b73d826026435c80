package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/creditgate/creditgate/internal/core"
	errwrap "github.com/creditgate/creditgate/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), foundry.ExitFileNotFound},
		{"validation", core.NewValidationError("requested_amount", "is required"), foundry.ExitConfigInvalid},
		{"config", errwrap.WrapConfigInvalid(context.Background(), errors.New("bad"), "config load failed"), foundry.ExitConfigInvalid},
		{"store", errwrap.WrapUnavailable(context.Background(), errors.New("refused"), "approval store unavailable"), foundry.ExitExternalServiceUnavailable},
		{"rejected", &core.RejectedError{}, foundry.ExitFailure},
		{"attempts", core.ErrAttemptsExceeded, foundry.ExitFailure},
	}

	for _, tc := range cases {
		if got := ExitCodeFor(tc.err); got != tc.want {
			t.Fatalf("%s: exit code = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestWriteFatal(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, "Command execution failed", errors.New("boom"))
	if got := buf.String(); got != "FATAL: Command execution failed: boom\n" {
		t.Fatalf("plain error output = %q", got)
	}

	buf.Reset()
	env := errwrap.WrapUnavailable(context.Background(), errors.New("dial tcp 127.0.0.1:6379: connection refused"), "approval store unavailable")
	writeFatal(&buf, "Command execution failed", env)
	out := buf.String()
	if !strings.Contains(out, "[SERVICE_UNAVAILABLE]: approval store unavailable") {
		t.Fatalf("envelope output missing code and message: %q", out)
	}
	if !strings.Contains(out, "Underlying error: dial tcp 127.0.0.1:6379: connection refused") {
		t.Fatalf("envelope output missing cause: %q", out)
	}

	buf.Reset()
	writeFatal(&buf, "Command execution failed", nil)
	if got := buf.String(); got != "FATAL: Command execution failed\n" {
		t.Fatalf("nil error output = %q", got)
	}
}
