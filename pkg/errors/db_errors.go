// Package errors provides database error classification and handling utilities.
package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDuplicateKey represents a unique key violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeInvalidJSON represents invalid JSON data (MySQL 3140-3143).
	ErrorTypeInvalidJSON
	// ErrorTypeDataTooLong represents MySQL 1406.
	ErrorTypeDataTooLong
	// ErrorTypeDeadlock represents lock contention (MySQL 1213, 1205).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a lost or unreachable database.
	ErrorTypeConnectionError
	// ErrorTypeTimeout represents a context deadline hit while querying.
	ErrorTypeTimeout
	// ErrorTypeMissingTable represents MySQL 1146, usually a missing migration.
	ErrorTypeMissingTable
)

var typeNames = map[DatabaseErrorType]string{
	ErrorTypeUnknown:         "unknown",
	ErrorTypeNotFound:        "not_found",
	ErrorTypeDuplicateKey:    "duplicate_key",
	ErrorTypeInvalidJSON:     "invalid_json",
	ErrorTypeDataTooLong:     "data_too_long",
	ErrorTypeDeadlock:        "deadlock",
	ErrorTypeConnectionError: "connection",
	ErrorTypeTimeout:         "timeout",
	ErrorTypeMissingTable:    "missing_table",
}

func (t DatabaseErrorType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// Transient reports whether retrying the same statement later may succeed.
func (e *DatabaseError) Transient() bool {
	switch e.Type {
	case ErrorTypeDeadlock, ErrorTypeConnectionError, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// ClassifyDBError classifies a database error. It returns nil for a nil error.
//
// Only typed inspection is used:
//   - gorm.ErrRecordNotFound → ErrorTypeNotFound
//   - *mysql.MySQLError → by error number
//   - context.DeadlineExceeded → ErrorTypeTimeout
//   - driver.ErrBadConn, mysql.ErrInvalidConn, net.Error → ErrorTypeConnectionError
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	var already *DatabaseError
	if errors.As(err, &already) {
		return already
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{Type: ErrorTypeNotFound, OriginalErr: err, Message: "record not found"}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &DatabaseError{Type: ErrorTypeTimeout, OriginalErr: err, Message: "database query timed out"}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr) {
		return &DatabaseError{Type: ErrorTypeConnectionError, OriginalErr: err, Message: "database connection error"}
	}

	return &DatabaseError{Type: ErrorTypeUnknown, OriginalErr: err, Message: "unknown database error"}
}

func classifyMySQLError(err *mysql.MySQLError) *DatabaseError {
	dbErr := &DatabaseError{OriginalErr: err, MySQLErrCode: err.Number}

	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		dbErr.Type, dbErr.Message = ErrorTypeDuplicateKey, "duplicate key constraint violation"
	case 3140, 3141, 3142, 3143:
		dbErr.Type, dbErr.Message = ErrorTypeInvalidJSON, "invalid JSON data"
	case 1406: // ER_DATA_TOO_LONG
		dbErr.Type, dbErr.Message = ErrorTypeDataTooLong, "data too long for column"
	case 1213, 1205: // ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		dbErr.Type, dbErr.Message = ErrorTypeDeadlock, "lock contention"
	case 1146: // ER_NO_SUCH_TABLE
		dbErr.Type, dbErr.Message = ErrorTypeMissingTable, "table does not exist"
	case 2006, 2013: // server gone away, lost connection
		dbErr.Type, dbErr.Message = ErrorTypeConnectionError, "database connection error"
	default:
		dbErr.Type, dbErr.Message = ErrorTypeUnknown, "MySQL error"
	}
	return dbErr
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsTransient checks if the error is worth retrying later.
func IsTransient(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Transient()
}
