package pcd

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPcdFormat            = errors.New("invalid pcd format")
	ErrUnsupportedEncoding         = errors.New("unsupported pcd data encoding")
	ErrUnsupportPointCloudFileType = errors.New("unsupport pointCloud fileType")
)

// FormatError reports a malformed header or payload. It matches
// ErrInvalidPcdFormat with errors.Is.
type FormatError struct {
	Key    string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Key != "" && e.Line > 0:
		return fmt.Sprintf("pcd: %s (line %d): %s", e.Key, e.Line, e.Reason)
	case e.Key != "":
		return fmt.Sprintf("pcd: %s: %s", e.Key, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("pcd: line %d: %s", e.Line, e.Reason)
	}
	return "pcd: " + e.Reason
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidPcdFormat
}

// IOError reports that the point cloud file could not be opened or read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return "pcd: read: " + e.Err.Error()
	}
	return fmt.Sprintf("pcd: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func formatErr(key string, line int, format string, args ...interface{}) error {
	return &FormatError{Key: key, Line: line, Reason: fmt.Sprintf(format, args...)}
}
