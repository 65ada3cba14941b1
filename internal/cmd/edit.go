package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/history"
	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/session"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Apply one edit to an image file",
	Long: `Apply one edit to an image file using the same rules as an interactive session.

Examples:
  photoedit edit --in a.jpg --out b.png --mode retouch --x 420 --y 310 --instruction "remove the sign"
  photoedit edit --in a.jpg --out b.png --mode fill --mask sky.png --instruction "a stormy sky"
  photoedit edit --in a.jpg --out b.png --protect --mask face.png --instruction "make it autumn"
  photoedit edit --in a.jpg --out b.png --mode filter --preset noir
  photoedit edit --in a.jpg --out b.png --mode crop --crop 100,80,900,680`,
	RunE: runEdit,
}

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().String("in", "", "Input image (PNG, JPEG or WebP)")
	editCmd.Flags().String("out", "", "Output image path")
	editCmd.Flags().String("mode", "", "Edit mode (retouch, fill, adjust, filter, reference, faceswap, combine, crop)")
	editCmd.Flags().String("instruction", "", "Edit instruction")
	editCmd.Flags().String("preset", "", "Filter preset name (filter mode)")
	editCmd.Flags().String("mask", "", "Mask image; any non-transparent pixel counts as painted")
	editCmd.Flags().Bool("protect", false, "Treat the mask as the region to keep (adjust mode)")
	editCmd.Flags().String("secondary", "", "Second image (reference, faceswap, combine)")
	editCmd.Flags().Int("x", -1, "Hotspot x in image pixels (retouch)")
	editCmd.Flags().Int("y", -1, "Hotspot y in image pixels (retouch)")
	editCmd.Flags().String("crop", "", "Crop rectangle x0,y0,x1,y1 in image pixels (crop)")
	editCmd.Flags().Float64("dpr", 1, "Scale factor applied to the cropped region")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"edit.in", "in"},
		{"edit.out", "out"},
		{"edit.mode", "mode"},
		{"edit.instruction", "instruction"},
		{"edit.preset", "preset"},
		{"edit.mask", "mask"},
		{"edit.protect", "protect"},
		{"edit.secondary", "secondary"},
		{"edit.x", "x"},
		{"edit.y", "y"},
		{"edit.crop", "crop"},
		{"edit.dpr", "dpr"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, editCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// editRequest describes one file edit.
type editRequest struct {
	Input       string
	Mode        string
	Instruction string
	Preset      string
	Mask        string
	Secondary   string
	Crop        string
	Hotspot     [2]int
	DPR         float64
	Protect     bool
}

func runEdit(cmd *cobra.Command, args []string) error {
	req := editRequest{
		Input:       viper.GetString("edit.in"),
		Mode:        viper.GetString("edit.mode"),
		Instruction: viper.GetString("edit.instruction"),
		Preset:      viper.GetString("edit.preset"),
		Mask:        viper.GetString("edit.mask"),
		Protect:     viper.GetBool("edit.protect"),
		Secondary:   viper.GetString("edit.secondary"),
		Hotspot:     [2]int{viper.GetInt("edit.x"), viper.GetInt("edit.y")},
		Crop:        viper.GetString("edit.crop"),
		DPR:         viper.GetFloat64("edit.dpr"),
	}
	out := viper.GetString("edit.out")

	if logger == nil {
		initLogging()
	}

	if req.Input == "" || out == "" {
		return errors.New("--in and --out are required")
	}
	mode, err := req.resolveMode()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ed editor.Editor
	if mode != session.ModeCrop {
		if ed, err = newEditor(ctx); err != nil {
			return err
		}
	}
	opts, err := sessionOptions(ed, nil)
	if err != nil {
		return err
	}

	logger.Info("Starting edit", "in", req.Input, "out", out, "mode", mode)

	snap, err := applyEdit(ctx, opts, req)
	if err != nil {
		return err
	}
	if err := imageio.WriteFile(out, snap); err != nil {
		return err
	}

	logger.Info("Edit written", "path", out, "width", snap.Width, "height", snap.Height)
	return nil
}

// resolveMode picks the edit mode from --mode and the other flags given.
func (r editRequest) resolveMode() (session.Mode, error) {
	if r.Mode == "" {
		switch {
		case r.Protect:
			return session.ModeAdjust, nil
		case r.Preset != "":
			return session.ModeFilter, nil
		case r.Crop != "":
			return session.ModeCrop, nil
		case r.Mask != "":
			return session.ModeFill, nil
		default:
			return session.ModeRetouch, nil
		}
	}
	mode, err := session.ParseMode(r.Mode)
	if err != nil {
		return "", err
	}
	if r.Protect && mode != session.ModeAdjust {
		return "", fmt.Errorf("--protect only applies to adjust mode, not %s", mode)
	}
	return mode, nil
}

// applyEdit runs req through a fresh session and returns the new snapshot.
func applyEdit(ctx context.Context, opts session.Options, req editRequest) (history.Snapshot, error) {
	mode, err := req.resolveMode()
	if err != nil {
		return history.Snapshot{}, err
	}

	src, err := os.ReadFile(req.Input)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("failed to read input: %w", err)
	}

	c := session.New(opts)
	defer c.Close()

	if err := c.Upload(src); err != nil {
		return history.Snapshot{}, fmt.Errorf("%s: %w", req.Input, err)
	}
	if err := c.SetMode(mode); err != nil {
		return history.Snapshot{}, err
	}

	if req.Preset != "" {
		if err := c.SelectPreset(req.Preset); err != nil {
			return history.Snapshot{}, fmt.Errorf("unknown preset %q", req.Preset)
		}
	} else if err := c.SetInstruction(req.Instruction); err != nil {
		return history.Snapshot{}, err
	}

	if req.Secondary != "" {
		data, err := os.ReadFile(req.Secondary)
		if err != nil {
			return history.Snapshot{}, fmt.Errorf("failed to read secondary image: %w", err)
		}
		if err := c.SetSecondary(data); err != nil {
			return history.Snapshot{}, err
		}
	}

	if req.Mask != "" {
		data, err := os.ReadFile(req.Mask)
		if err != nil {
			return history.Snapshot{}, fmt.Errorf("failed to read mask: %w", err)
		}
		img, _, err := imageio.Decode(data)
		if err != nil {
			return history.Snapshot{}, fmt.Errorf("%s: %w", req.Mask, err)
		}
		if err := c.LoadMask(img); err != nil {
			return history.Snapshot{}, err
		}
	}

	if req.Hotspot[0] >= 0 && req.Hotspot[1] >= 0 {
		// Without a layout the display space is the native space.
		if err := c.Click(orb.Point{float64(req.Hotspot[0]), float64(req.Hotspot[1])}); err != nil {
			return history.Snapshot{}, err
		}
	}

	if req.Crop != "" {
		b, err := parseCrop(req.Crop)
		if err != nil {
			return history.Snapshot{}, err
		}
		if err := c.SetCropSelection(b, req.DPR); err != nil {
			return history.Snapshot{}, err
		}
	}

	if err := c.Submit(ctx); err != nil {
		if msg := c.State().ErrorMessage; msg != "" {
			return history.Snapshot{}, fmt.Errorf("%s: %w", msg, err)
		}
		return history.Snapshot{}, err
	}

	snap, _ := c.Current()
	return snap, nil
}

// parseCrop parses "x0,y0,x1,y1".
func parseCrop(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("crop must have 4 values (x0,y0,x1,y1), got %d", len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid crop value %q: %w", p, err)
		}
		v[i] = f
	}

	if v[0] >= v[2] {
		return orb.Bound{}, fmt.Errorf("crop x0 (%g) must be less than x1 (%g)", v[0], v[2])
	}
	if v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("crop y0 (%g) must be less than y1 (%g)", v[1], v[3])
	}

	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
