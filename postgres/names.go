package postgres

import (
	"fmt"
	"strings"
)

// maxIdentifierLen is NAMEDATALEN - 1.
const maxIdentifierLen = 63

// sanitizeTableName accepts "table" or "schema.table" made of ASCII letters, digits and underscores.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || len(part) > maxIdentifierLen {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for i, r := range part {
			if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}
