package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrJobNotFound       = errors.New("job not found")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// MetadataError means the title and id of a URL could not be resolved.
type MetadataError struct {
	URL    string
	Reason string
	Err    error
}

func (e *MetadataError) Error() string {
	msg := fmt.Sprintf("resolve metadata for %s: %s", e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MetadataError) Unwrap() error { return e.Err }

// PipelineError covers a failed extraction run or a missing marker file.
type PipelineError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// RenameCollisionError means two chapters map to the same clean name, or the
// destination is already taken by another file.
type RenameCollisionError struct {
	Source      string
	Destination string
	Other       string
}

func (e *RenameCollisionError) Error() string {
	if e.Other != "" {
		return fmt.Sprintf("rename collision: %s and %s both map to %s", e.Other, e.Source, e.Destination)
	}
	return fmt.Sprintf("rename collision: %s already exists (from %s)", e.Destination, e.Source)
}

// PackagingError means the chapter directory could not be archived.
type PackagingError struct {
	Dir    string
	Reason string
	Err    error
}

func (e *PackagingError) Error() string {
	msg := fmt.Sprintf("package %s: %s", e.Dir, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PackagingError) Unwrap() error { return e.Err }
