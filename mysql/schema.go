package mysql

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	from_address VARCHAR(320) NOT NULL,
	to_addresses JSON NULL,
	cc_addresses JSON NULL,
	bcc_addresses JSON NULL,
	reply_to JSON NULL,
	subject VARCHAR(998) NOT NULL DEFAULT '',
	text_body MEDIUMTEXT NULL,
	html_body MEDIUMTEXT NULL,
	headers JSON NULL,
	attachments %s NULL,
	priority INT NOT NULL DEFAULT 2,
	status VARCHAR(16) NOT NULL,
	errors INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	send_at TIMESTAMP(6) NULL,
	queued_at TIMESTAMP(6) NULL,
	sending_at TIMESTAMP(6) NULL,
	sent_at TIMESTAMP(6) NULL,
	delayed_at TIMESTAMP(6) NULL,
	failed_at TIMESTAMP(6) NULL,
	canceled_at TIMESTAMP(6) NULL,
	read_at TIMESTAMP(6) NULL,
	PRIMARY KEY (id),
	INDEX idx_status_order (status, priority, send_at, queued_at),
	INDEX idx_status_sending (status, sending_at)
);`

const (
	attachmentsJSON     = "JSON"
	attachmentsLongText = "LONGTEXT"
)

// Schema returns the emails table definition with JSON attachments.
func Schema(table string) (string, error) {
	return buildSchema(table, attachmentsJSON)
}

// SchemaLongText returns a schema storing attachments as LONGTEXT, for servers whose
// max_allowed_packet or JSON limits reject large attachment documents.
func SchemaLongText(table string) (string, error) {
	return buildSchema(table, attachmentsLongText)
}

func buildSchema(table, attachmentsType string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, attachmentsType), nil
}
