package dbpool

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// DriverName returns the database/sql driver name registered by the
// dialect's driver subpackage.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// ValidationQuery returns a cheap liveness statement for the dialect.
func (d Dialect) ValidationQuery() string {
	return "SELECT 1"
}
