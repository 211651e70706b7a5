package postgres

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("mailqueue postgres: db is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("mailqueue postgres: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("mailqueue postgres: invalid table name")
	// ErrUnknownStatus is returned when a patch carries a status without a timestamp column.
	ErrUnknownStatus = errors.New("mailqueue postgres: unknown status")
)
