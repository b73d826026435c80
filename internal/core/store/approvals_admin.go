package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/creditgate/creditgate/internal/core"
)

// ApprovalQuery selects approvals for admin commands.
type ApprovalQuery struct {
	All      bool
	Identity string
	Prefix   string
}

func (q ApprovalQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Identity) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --identity, or --prefix")
}

// Matches applies the query to one identity.
func (q ApprovalQuery) Matches(identity string) bool {
	if q.All {
		return true
	}
	if want := strings.TrimSpace(q.Identity); want != "" {
		return identity == want
	}
	prefix := strings.TrimSpace(q.Prefix)
	return prefix != "" && strings.HasPrefix(identity, prefix)
}

func (q ApprovalQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if identity := strings.TrimSpace(q.Identity); identity != "" {
		return "WHERE identity = ?", []any{identity}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE identity LIKE ? ESCAPE '\\'", []any{escapeLike(prefix) + "%"}, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func (s *Store) ListApprovals(ctx context.Context, q ApprovalQuery) ([]core.ApprovalEntry, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM approvals
		%s
		ORDER BY identity
	`, approvalColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.ApprovalEntry{}
	for rows.Next() {
		entry, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approvals: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}

	return entries, nil
}

func (s *Store) CountApprovals(ctx context.Context, q ApprovalQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM approvals
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count approvals: %w", err)
	}
	return count, nil
}

// DeleteApprovals removes matching approvals so the identities can apply again.
func (s *Store) DeleteApprovals(ctx context.Context, q ApprovalQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM approvals
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete approvals: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete approvals: %w", err)
	}
	return affected, nil
}
