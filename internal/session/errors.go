package session

import "errors"

var (
	// ErrBusy is returned by every mutating operation while an edit is in flight.
	ErrBusy = errors.New("session is busy")
	// ErrUnknownMode is returned by SetMode for names outside Modes.
	ErrUnknownMode = errors.New("unknown mode")
	// ErrWrongMode is returned for inputs the active mode does not take.
	ErrWrongMode = errors.New("not available in the active mode")
	// ErrInvalidBrush is returned for non-positive brush sizes.
	ErrInvalidBrush = errors.New("brush size must be positive")
	// ErrCropFailed is returned when the crop selection cannot be resampled.
	ErrCropFailed = errors.New("crop failed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session is closed")
)

// Validation reasons.
const (
	ReasonNoImage            = "no_image"
	ReasonMissingInstruction = "missing_instruction"
	ReasonMissingHotspot     = "missing_hotspot"
	ReasonMissingMask        = "missing_mask"
	ReasonMissingSecondary   = "missing_secondary"
	ReasonMissingCrop        = "missing_crop"
	ReasonUnknownPreset      = "unknown_preset"
)

// ValidationError is a local precondition failure detected before any edit
// is issued.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

func invalid(reason string) error { return &ValidationError{Reason: reason} }
