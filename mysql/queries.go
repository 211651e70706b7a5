package mysql

import (
	"fmt"
	"strings"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/sqlrow"
)

type queries struct {
	insert       string
	get          string
	selectStale  string
	findEligible string
	countPending string
}

func newQueries(table string) queries {
	cols := strings.Join(sqlrow.Columns, ", ")
	excluded := makePlaceholders(len(mailqueue.Excluded()))
	eligible := fmt.Sprintf(
		"FROM %s WHERE status NOT IN (%s) AND errors < ? AND (send_at IS NULL OR send_at <= ?)",
		table,
		excluded,
	)

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			table,
			cols,
			makePlaceholders(len(sqlrow.Columns)),
		),
		get: fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", cols, table),
		selectStale: fmt.Sprintf(
			"SELECT id FROM %s WHERE status = ? AND sending_at <= ? ORDER BY priority ASC, queued_at ASC, id ASC FOR UPDATE",
			table,
		),
		findEligible: "SELECT id " + eligible + " ORDER BY priority ASC, send_at ASC, queued_at ASC, id ASC",
		countPending: "SELECT COUNT(*) " + eligible,
	}
}

// buildTransition renders the conditional update for patch; the id and the from statuses
// are bound after the SET arguments.
func buildTransition(table string, patch mailqueue.Patch, from int) (string, []any, error) {
	col, ok := sqlrow.TimestampColumn(patch.Status)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownStatus, patch.Status)
	}

	set := []string{"status = ?", col + " = ?"}
	args := []any{string(patch.Status), patch.At.UTC()}
	if patch.IncrementErrors {
		set = append(set, "errors = errors + 1")
	}
	if patch.Error != "" {
		set = append(set, "last_error = ?")
		args = append(args, sqlrow.Truncate(patch.Error))
	}
	if patch.ClearSendingAt && patch.Status != mailqueue.StatusSending {
		set = append(set, "sending_at = NULL")
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = ? AND status IN (%s)",
		table,
		strings.Join(set, ", "),
		makePlaceholders(from),
	)

	return query, args, nil
}

func buildReclaim(table string, count int) string {
	return fmt.Sprintf(
		"UPDATE %s SET status = ?, delayed_at = ? WHERE status = ? AND id IN (%s)",
		table,
		makePlaceholders(count),
	)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}
