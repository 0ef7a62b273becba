package api

import (
	"errors"
	"fmt"
)

// TransportError means no structured response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type IngestionError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *IngestionError) Error() string {
	return describe("ingestion", e.StatusCode, e.Detail, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

type QueryError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *QueryError) Error() string {
	return describe("query", e.StatusCode, e.Detail, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func describe(op string, status int, detail string, err error) string {
	switch {
	case detail != "":
		return fmt.Sprintf("%s failed (status %d): %s", op, status, detail)
	case err != nil:
		return fmt.Sprintf("%s failed (status %d): %v", op, status, err)
	default:
		return fmt.Sprintf("%s failed with status %d", op, status)
	}
}

// Detail returns the server-supplied detail carried by err, if any.
func Detail(err error) (string, bool) {
	var ie *IngestionError
	if errors.As(err, &ie) && ie.Detail != "" {
		return ie.Detail, true
	}
	var qe *QueryError
	if errors.As(err, &qe) && qe.Detail != "" {
		return qe.Detail, true
	}
	return "", false
}
