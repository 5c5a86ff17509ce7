package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
	// DialectMySQL is the MySQL dialect name.
	DialectMySQL = "mysql"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// CaseInsensitiveLikeExpr returns a SQL expression for case-insensitive LIKE.
func CaseInsensitiveLikeExpr(conn *gorm.DB, column string) string {
	switch DialectName(conn) {
	case DialectPostgres:
		return fmt.Sprintf("%s ILIKE ?", column)
	case DialectSQLite:
		return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column)
	default:
		return fmt.Sprintf("LOWER(%s) LIKE ?", column)
	}
}

// NormalizeLikePattern normalizes a LIKE pattern for the current dialect.
func NormalizeLikePattern(conn *gorm.DB, pattern string) string {
	if DialectName(conn) == DialectPostgres {
		return pattern
	}
	return strings.ToLower(pattern)
}

// ContainsPattern wraps term for a substring LIKE match, escaping wildcards.
func ContainsPattern(conn *gorm.DB, term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return NormalizeLikePattern(conn, "%"+escaped+"%")
}
