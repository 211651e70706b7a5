package mysql

import (
	"fmt"
	"strings"
)

// maxIdentifierLen is the MySQL limit for a single identifier.
const maxIdentifierLen = 64

// sanitizeTableName accepts "table" or "schema.table" made of ASCII letters, digits and underscores.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || len(part) > maxIdentifierLen {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}
