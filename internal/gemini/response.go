package gemini

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MeKo-Tech/photoedit/internal/editor"
)

// ErrBlocked is wrapped when the prompt or a candidate was stopped by a
// safety filter.
var ErrBlocked = errors.New("request blocked by safety policy")

// Finish reasons that mean a candidate was stopped by a content filter.
var policyFinishReasons = map[string]bool{
	"SAFETY":                   true,
	"PROHIBITED_CONTENT":       true,
	"BLOCKLIST":                true,
	"SPII":                     true,
	"IMAGE_SAFETY":             true,
	"IMAGE_PROHIBITED_CONTENT": true,
}

// extractImage returns the first inline image of resp.
func extractImage(resp *genai.GenerateContentResponse) (editor.Image, editor.Kind, error) {
	if resp == nil {
		return editor.Image{}, editor.KindNoResult, fmt.Errorf("empty response: %w", editor.ErrNoImage)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return editor.Image{}, editor.KindPolicy, fmt.Errorf("%w: prompt blocked (%s) %s", ErrBlocked, fb.BlockReason, fb.BlockReasonMessage)
	}

	var text []string
	var finish string
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if finish == "" {
			finish = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return editor.Image{Data: part.InlineData.Data, MIMEType: mime}, editor.KindGeneric, nil
			}
			if part.Text != "" {
				text = append(text, part.Text)
			}
		}
	}

	if policyFinishReasons[finish] {
		return editor.Image{}, editor.KindPolicy, fmt.Errorf("%w: finish reason %s", ErrBlocked, finish)
	}
	if len(text) > 0 {
		return editor.Image{}, editor.KindNoResult, fmt.Errorf("%w: %s", editor.ErrNoImage, strings.Join(text, " "))
	}
	return editor.Image{}, editor.KindNoResult, editor.ErrNoImage
}
