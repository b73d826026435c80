package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creditgate/creditgate/internal/core"
)

const approvalColumns = `identity, id, status, approved_amount, created_at`

// Get returns the approval stored for identity, or nil when there is none.
func (s *Store) Get(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE identity = ?
	`, identity)

	entry, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch approval: %w", err)
	}

	return &entry.Record, nil
}

// Put inserts record for identity unless an approval already exists, then
// returns the stored row. Concurrent writers all observe the first insert.
func (s *Store) Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, errors.New("approval id is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO approvals (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO NOTHING
	`, identity, record.ID, string(record.Status), record.ApprovedAmount.String(), formatTime(record.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("store approval: %w", err)
	}

	stored, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("store approval: row for %s missing after insert", identity)
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (core.ApprovalEntry, error) {
	var (
		identity  string
		id        string
		status    string
		amount    string
		createdAt string
	)
	if err := row.Scan(&identity, &id, &status, &amount, &createdAt); err != nil {
		return core.ApprovalEntry{}, err
	}

	approved, err := decimal.NewFromString(amount)
	if err != nil {
		return core.ApprovalEntry{}, fmt.Errorf("decode approved_amount %q: %w", amount, err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return core.ApprovalEntry{}, fmt.Errorf("decode created_at %q: %w", createdAt, err)
	}

	return core.ApprovalEntry{
		Identity: identity,
		Record: core.ApprovalRecord{
			ID:             id,
			Status:         core.ApprovalStatus(status),
			ApprovedAmount: approved,
			CreatedAt:      created.UTC(),
		},
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
