package db

import (
	"database/sql"
	"time"
)

// sqlite has no native timestamp type, so instants are stored as unix milliseconds.

func ToUnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NullString converts an optional string into a sql.NullString. Empty strings are treated as NULL.
func NullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr converts a sql.NullString into an optional string.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
