// Package locale renders the user-visible error messages of an edit session.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MeKo-Tech/photoedit/internal/editor"
)

var supported = []language.Tag{language.English, language.German}

var matcher = language.NewMatcher(supported)

// Printer formats messages for one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// New returns a printer for the best supported match of lang (e.g. "de",
// "de-AT", "en-US"). Unknown languages fall back to English.
func New(lang string) Printer {
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()
	tag = language.Make(base.String())
	return Printer{tag: tag, p: message.NewPrinter(tag)}
}

// Tag returns the language messages are rendered in.
func (p Printer) Tag() language.Tag { return p.tag }

// Failure renders a service failure for an editing mode.
func (p Printer) Failure(mode string, kind editor.Kind) string {
	action := p.p.Sprintf("mode." + mode)
	switch kind {
	case editor.KindPolicy:
		return p.p.Sprintf("failure.policy", action)
	case editor.KindNoResult:
		return p.p.Sprintf("failure.no_result", action)
	default:
		return p.p.Sprintf("failure.generic", action)
	}
}

// Validation renders a local validation failure by reason key.
func (p Printer) Validation(reason string) string {
	return p.p.Sprintf("validation." + reason)
}

// CropFailed renders a local crop resampling failure.
func (p Printer) CropFailed() string {
	return p.p.Sprintf("crop.failed")
}
