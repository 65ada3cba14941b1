package cmd

import (
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/gemini"
	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/preview"
	"github.com/MeKo-Tech/photoedit/internal/session"
)

const defaultModelName = gemini.DefaultModel

// newEditor builds the image service client from gemini.* config.
func newEditor(ctx context.Context) (editor.Editor, error) {
	client, err := gemini.New(ctx, gemini.Config{
		APIKey: viper.GetString("gemini.api_key"),
		Model:  viper.GetString("gemini.model"),
	}, logger)
	if err != nil {
		if errors.Is(err, gemini.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w (set PHOTOEDIT_GEMINI_API_KEY or gemini.api_key)", err)
		}
		return nil, err
	}
	logger.Debug("image service ready", "model", client.Model())
	return client, nil
}

// presets returns the filter presets from config, or the built-in set.
func presets() map[string]string {
	p := viper.GetStringMapString("filters")
	if len(p) == 0 {
		return session.DefaultPresets
	}
	return p
}

// sessionOptions builds the controller template shared by all commands.
func sessionOptions(ed editor.Editor, reg *preview.Registry) (session.Options, error) {
	level, err := compression()
	if err != nil {
		return session.Options{}, err
	}
	growPx := viper.GetInt("mask.grow_px")
	if growPx < 0 {
		return session.Options{}, fmt.Errorf("mask.grow_px must not be negative, got %d", growPx)
	}
	radius := viper.GetFloat64("mask.brush_radius")
	if radius <= 0 {
		return session.Options{}, fmt.Errorf("mask.brush_radius must be positive, got %g", radius)
	}

	return session.Options{
		Editor:      ed,
		Previews:    reg,
		Locale:      viper.GetString("locale"),
		Presets:     presets(),
		GrowPx:      growPx,
		BrushSize:   2 * radius,
		Compression: level,
		Logger:      logger,
	}, nil
}

func compression() (png.CompressionLevel, error) {
	return imageio.ParseCompression(viper.GetString("png.compression"))
}
