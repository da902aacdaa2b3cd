package utils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// DescribeDeleteError turns a failed delete into a message an administrator
// can act on. Unknown failures keep the store's raw message.
func DescribeDeleteError(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23503":
			return "Cannot delete: other records still reference it (foreign key " + pgErr.ConstraintName + ")"
		case pgErr.Code == "42501":
			return "Cannot delete: permission denied"
		case strings.HasPrefix(pgErr.Code, "23"):
			return "Cannot delete: constraint " + pgErr.ConstraintName + " violated"
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "foreign key"):
		return "Cannot delete: other records still reference it (" + msg + ")"
	case strings.Contains(lower, "permission"):
		return "Cannot delete: permission denied (" + msg + ")"
	case strings.Contains(lower, "constraint"):
		return "Cannot delete: constraint violated (" + msg + ")"
	}
	return msg
}
