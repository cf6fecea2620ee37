package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("cadence mysql: db is required")
	// ErrTableNameRequired is returned when a table name is empty.
	ErrTableNameRequired = errors.New("cadence mysql: table name is required")
	// ErrInvalidTableName is returned when a table name has disallowed characters.
	ErrInvalidTableName = errors.New("cadence mysql: invalid table name")
	// ErrDuplicateEnrollment is returned when an enrollment id already exists.
	ErrDuplicateEnrollment = errors.New("cadence mysql: duplicate enrollment id")
)
