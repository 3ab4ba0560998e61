package generator

import (
	"fmt"
	"strings"

	"github.com/koba/dbsync/internal/schema"
)

// QuoteLiteral quotes s as a SQL string literal
func QuoteLiteral(s string) string {
	// Escape single quotes
	escaped := strings.ReplaceAll(s, "'", "''")
	return fmt.Sprintf("'%s'", escaped)
}

// defaultLiteral renders a column default as '<value>'::<type>
func defaultLiteral(v any, sqlType string) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%s::%s", QuoteLiteral(schema.FormatDefault(v)), schema.CastType(sqlType))
}
