// Package gemini implements editor.Editor on top of the Gemini image model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MeKo-Tech/photoedit/internal/editor"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash-image"

// ErrMissingAPIKey is returned by New without an API key.
var ErrMissingAPIKey = errors.New("gemini api key not configured")

// Config holds the adapter settings.
type Config struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// generator is the subset of *genai.Models used by the adapter.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is an editor.Editor backed by the Gemini API.
type Client struct {
	gen    generator
	logger *slog.Logger
	model  string
}

var _ editor.Editor = (*Client)(nil)

// New creates a Client for the Gemini developer API.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newWithGenerator(gc.Models, cfg.Model, logger), nil
}

func newWithGenerator(gen generator, model string, logger *slog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{gen: gen, model: model, logger: logger}
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

func (c *Client) PointEdit(ctx context.Context, img editor.Image, instruction string, hotspot image.Point) (editor.Image, error) {
	prompt := fmt.Sprintf(
		"You are a photo retoucher. Apply this edit to the image, localized around pixel "+
			"(x=%d, y=%d) measured from the top-left corner: %s\n"+
			"Keep everything outside the edited area unchanged and return only the edited image.",
		hotspot.X, hotspot.Y, instruction)
	return c.generate(ctx, editor.OpPointEdit,
		genai.NewPartFromText(prompt),
		imagePart(img),
	)
}

func (c *Client) MaskFill(ctx context.Context, img editor.Image, mask editor.Image, instruction string) (editor.Image, error) {
	prompt := "The second image is a black and white mask with the same size as the first image. " +
		"Edit only the regions that are white in the mask and leave black regions pixel-identical."
	if strings.TrimSpace(instruction) != "" {
		prompt += " Edit: " + instruction
	} else {
		prompt += " Fill the white regions so they blend naturally with their surroundings."
	}
	return c.generate(ctx, editor.OpMaskFill,
		genai.NewPartFromText(prompt),
		imagePart(img),
		imagePart(mask),
	)
}

func (c *Client) StyleOrAdjust(ctx context.Context, img editor.Image, instruction string, reference *editor.Image) (editor.Image, error) {
	parts := []*genai.Part{imagePart(img)}
	prompt := "Apply this adjustment to the whole image and return the edited image: " + instruction
	if reference != nil {
		prompt = "Use the second image as a reference. Apply this adjustment to the first image " +
			"and return the edited first image: " + instruction
		parts = append(parts, imagePart(*reference))
	}
	return c.generate(ctx, editor.OpStyleOrAdjust, append([]*genai.Part{genai.NewPartFromText(prompt)}, parts...)...)
}

func (c *Client) FaceSwap(ctx context.Context, source editor.Image, target editor.Image) (editor.Image, error) {
	prompt := "Replace the face of the person in the first image with the face from the second image. " +
		"Preserve pose, lighting, expression and background of the first image."
	return c.generate(ctx, editor.OpFaceSwap,
		genai.NewPartFromText(prompt),
		imagePart(source),
		imagePart(target),
	)
}

func (c *Client) Combine(ctx context.Context, img editor.Image, other editor.Image, instruction string) (editor.Image, error) {
	prompt := "Combine the two images into one photo: " + instruction
	return c.generate(ctx, editor.OpCombine,
		genai.NewPartFromText(prompt),
		imagePart(img),
		imagePart(other),
	)
}

func (c *Client) generate(ctx context.Context, op editor.Op, parts ...*genai.Part) (editor.Image, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	c.log().Debug("gemini request", "op", op, "model", c.model, "parts", len(parts))
	resp, err := c.gen.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return editor.Image{}, &editor.Error{Op: op, Kind: editor.Classify(err), Err: err}
	}

	out, kind, err := extractImage(resp)
	if err != nil {
		c.log().Warn("gemini response without image", "op", op, "kind", kind, "error", err)
		return editor.Image{}, &editor.Error{Op: op, Kind: kind, Err: err}
	}
	c.log().Debug("gemini response", "op", op, "bytes", len(out.Data), "mime", out.MIMEType)
	return out, nil
}

func imagePart(img editor.Image) *genai.Part {
	return genai.NewPartFromBytes(img.Data, img.MIMEType)
}
