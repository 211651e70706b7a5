package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/sqlrow"
)

type queries struct {
	insert       string
	get          string
	reclaim      string
	findEligible string
	countPending string
}

func newQueries(table string) queries {
	cols := strings.Join(sqlrow.Columns, ", ")
	excluded := len(mailqueue.Excluded())
	eligible := fmt.Sprintf(
		"FROM %s WHERE status NOT IN (%s) AND errors < $%d AND (send_at IS NULL OR send_at <= $%d)",
		table,
		placeholders(1, excluded),
		excluded+1,
		excluded+2,
	)

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			table,
			cols,
			placeholders(1, len(sqlrow.Columns)),
		),
		get: fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", cols, table),
		reclaim: fmt.Sprintf(
			"WITH stale AS (SELECT id FROM %[1]s WHERE status = $3 AND sending_at <= $4 FOR UPDATE SKIP LOCKED) "+
				"UPDATE %[1]s AS e SET status = $1, delayed_at = $2 FROM stale WHERE e.id = stale.id RETURNING e.id",
			table,
		),
		findEligible: "SELECT id " + eligible + " ORDER BY priority ASC, send_at ASC NULLS FIRST, queued_at ASC, id ASC",
		countPending: "SELECT COUNT(*) " + eligible,
	}
}

// buildTransition renders the conditional update for patch. The id and the from statuses
// are bound after the SET arguments.
func buildTransition(table string, patch mailqueue.Patch, from int) (string, []any, error) {
	col, ok := sqlrow.TimestampColumn(patch.Status)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownStatus, patch.Status)
	}

	set := []string{"status = $1", col + " = $2"}
	args := []any{string(patch.Status), patch.At.UTC()}
	if patch.IncrementErrors {
		set = append(set, "errors = errors + 1")
	}
	if patch.Error != "" {
		args = append(args, sqlrow.Truncate(patch.Error))
		set = append(set, "last_error = $"+strconv.Itoa(len(args)))
	}
	if patch.ClearSendingAt && patch.Status != mailqueue.StatusSending {
		set = append(set, "sending_at = NULL")
	}

	next := len(args) + 1
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND status IN (%s)",
		table,
		strings.Join(set, ", "),
		next,
		placeholders(next+1, from),
	)

	return query, args, nil
}

// placeholders renders count numbered parameters starting at $start.
func placeholders(start, count int) string {
	if count <= 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(start + i))
	}

	return b.String()
}
