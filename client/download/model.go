package download

import (
	"errors"
	"fmt"
)

// maxErrBodySize caps the amount of response body read when
// building a [StatusError].
const maxErrBodySize = 4 << 10 // 4KB

var (
	// ErrConfiguration indicates an invalid staging cache setup.
	ErrConfiguration = errors.New("configuration error")
	// ErrNetwork is wrapped by every failure to open or read the remote resource.
	ErrNetwork = errors.New("network error")
	// ErrFilesystem is wrapped by create, delete and rename failures.
	ErrFilesystem = errors.New("filesystem error")

	ErrUnexpectedStatusCode  = errors.New("unexpected status code")
	ErrAuthFailure           = errors.New("auth failure")
	ErrLengthUnavailable     = errors.New("content length unavailable")
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrDownloadCancelled     = errors.New("download cancelled")
	ErrBatchClosed           = errors.New("download batch closed")
)

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is returned when the server answers with anything but 200 OK.
// It matches both [ErrNetwork] and [ErrUnexpectedStatusCode], and
// [ErrAuthFailure] for 401 and 403.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", ErrUnexpectedStatusCode, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() []error {
	errs := []error{ErrNetwork, ErrUnexpectedStatusCode}
	if e.StatusCode == 401 || e.StatusCode == 403 {
		errs = append(errs, ErrAuthFailure)
	}

	return errs
}

// Status is the terminal state of a single download call.
type Status uint8

const (
	// StatusSucceeded means the destination holds the full response body.
	StatusSucceeded Status = iota + 1
	// StatusSkipped means the call did not run: the filter rejected it as a
	// duplicate, or WithSkipExisting found the destination present.
	StatusSkipped
	// StatusFailed means the call ended with an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Report describes how a download call ended.
type Report struct {
	Status Status
	// Path is the file holding the downloaded content. For a replayed
	// waiter it is the primary task's destination.
	Path string
	// Written is the number of body bytes transferred by the task that
	// performed the download.
	Written int64
	// Replayed is set when the outcome was inherited from a primary task.
	Replayed bool
	// TaskID identifies the primary task record, if a filter was involved.
	TaskID string
}
