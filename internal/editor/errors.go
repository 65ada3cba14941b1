package editor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a service failure for presentation.
type Kind int

const (
	// KindGeneric is any failure that is neither of the others.
	KindGeneric Kind = iota
	// KindPolicy means the request was blocked by a content or safety policy.
	KindPolicy
	// KindNoResult means the service answered but produced no image.
	KindNoResult
)

func (k Kind) String() string {
	switch k {
	case KindPolicy:
		return "policy"
	case KindNoResult:
		return "no_result"
	default:
		return "generic"
	}
}

// Error is a classified service failure.
type Error struct {
	Err  error
	Op   Op
	Kind Kind
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoImage is wrapped by implementations that got a response without an
// image part.
var ErrNoImage = errors.New("service did not return an image")

// Classify returns the structured kind carried by err, falling back to
// matching the failure text when the service offers nothing better.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNoImage) {
		return KindNoResult
	}
	return classifyText(err.Error())
}

var (
	policyMarkers = []string{
		"safety", "policy", "blocked", "prohibited", "prohibited_content",
		"responsible ai", "image_safety",
	}
	noResultMarkers = []string{
		"no image", "did not return", "no result", "no candidates", "empty response",
	}
)

func classifyText(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, m := range policyMarkers {
		if strings.Contains(msg, m) {
			return KindPolicy
		}
	}
	for _, m := range noResultMarkers {
		if strings.Contains(msg, m) {
			return KindNoResult
		}
	}
	return KindGeneric
}
