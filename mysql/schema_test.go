package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	schema, err := Schema("emails")
	require.NoError(t, err)
	require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS emails")
	require.Contains(t, schema, "attachments JSON")
	require.Contains(t, schema, "INDEX idx_status_order (status, priority, send_at, queued_at)")
}

func TestSchemaLongText(t *testing.T) {
	schema, err := SchemaLongText("mail.emails")
	require.NoError(t, err)
	require.True(t, strings.Contains(schema, "attachments LONGTEXT"))
}

func TestSchemaInvalidTable(t *testing.T) {
	_, err := Schema("emails;drop table users")
	require.ErrorIs(t, err, ErrInvalidTableName)
}
