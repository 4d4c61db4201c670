// Package errors holds the sentinel and typed errors shared by the modpatch packages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileExists  = fmt.Errorf("config file already exists")
	ErrNoGameDir         = fmt.Errorf("no game directory configured")

	// Mod errors.
	ErrInvalidModFormat     = fmt.Errorf("invalid mod format")
	ErrUnsupportedModFormat = fmt.Errorf("unsupported mod format")
	ErrModNotFound          = fmt.Errorf("mod not found")
	ErrVariantNotFound      = fmt.Errorf("mod variant not found")
	ErrGameNotSupported     = fmt.Errorf("mod does not support this game")
	ErrModChecksum          = fmt.Errorf("mod file checksum mismatch")

	// Library and apply errors.
	ErrInvalidPath         = fmt.Errorf("invalid path")
	ErrResourceNotFound    = fmt.Errorf("resource not found")
	ErrArchiveUnavailable  = fmt.Errorf("archive unavailable")
	ErrPartialApply        = fmt.Errorf("some files were not modified")
	ErrLibraryCorrupt      = fmt.Errorf("library is corrupt")
	ErrUnsupportedManifest = fmt.Errorf("unsupported library manifest version")

	// Hook errors.
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

type (
	// ResourceNotFoundError is returned when a declared file has no backing content.
	ResourceNotFoundError struct {
		Path string
		Err  error
	}

	// ArchiveUnavailableError is returned when an archive location cannot be processed
	// because the archive file is missing or no manager is registered for it.
	ArchiveUnavailableError struct {
		Location   string
		LocationID string
		Reason     string
	}

	// LocationError records the failure of one location during an apply.
	LocationError struct {
		Location string
		Err      error
	}

	// PartialApplyError aggregates every location that failed during an apply.
	PartialApplyError struct {
		Failures []*LocationError
	}
)

// NewResourceNotFoundError creates a new ResourceNotFoundError.
func NewResourceNotFoundError(path string, err error) error {
	return &ResourceNotFoundError{Path: path, Err: err}
}

func (e *ResourceNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resource not found: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("resource not found: %s", e.Path)
}

// Unwrap returns the underlying error.
func (e *ResourceNotFoundError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrResourceNotFound) hold.
func (e *ResourceNotFoundError) Is(target error) bool {
	return target == ErrResourceNotFound
}

// NewArchiveUnavailableError creates a new ArchiveUnavailableError.
func NewArchiveUnavailableError(location, locationID, reason string) error {
	return &ArchiveUnavailableError{Location: location, LocationID: locationID, Reason: reason}
}

func (e *ArchiveUnavailableError) Error() string {
	return fmt.Sprintf("archive %s (%s) unavailable: %s", e.Location, e.LocationID, e.Reason)
}

// Is makes errors.Is(err, ErrArchiveUnavailable) hold.
func (e *ArchiveUnavailableError) Is(target error) bool {
	return target == ErrArchiveUnavailable
}

func (e *LocationError) Error() string {
	name := e.Location
	if name == "" {
		name = "<game directory>"
	}
	return fmt.Sprintf("location %s: %v", name, e.Err)
}

// Unwrap returns the underlying error.
func (e *LocationError) Unwrap() error {
	return e.Err
}

func (e *PartialApplyError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%v: %s", ErrPartialApply, strings.Join(msgs, "; "))
}

// Unwrap exposes every location failure to errors.Is and errors.As.
func (e *PartialApplyError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Is makes errors.Is(err, ErrPartialApply) hold.
func (e *PartialApplyError) Is(target error) bool {
	return target == ErrPartialApply
}
