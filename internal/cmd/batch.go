package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/session"
	"github.com/MeKo-Tech/photoedit/internal/worker"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Apply one instruction or preset to every image in a directory",
	Long: `Apply a style or adjustment to every PNG, JPEG and WebP file in a directory.

Each file is edited in its own session in filter mode, so --preset and preset
names given as --instruction resolve the same way they do interactively.
Results are written as PNG with the input's base name.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("in-dir", "", "Directory with input images")
	batchCmd.Flags().String("out-dir", "", "Directory for edited images")
	batchCmd.Flags().String("instruction", "", "Edit instruction applied to every image")
	batchCmd.Flags().String("preset", "", "Filter preset applied to every image")
	batchCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	batchCmd.Flags().Bool("progress", true, "Show progress bar")
	batchCmd.Flags().Bool("force", false, "Overwrite outputs that already exist")
	batchCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some images fail")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"batch.in_dir", "in-dir"},
		{"batch.out_dir", "out-dir"},
		{"batch.instruction", "instruction"},
		{"batch.preset", "preset"},
		{"batch.workers", "workers"},
		{"batch.progress", "progress"},
		{"batch.force", "force"},
		{"batch.allow_failures", "allow-failures"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, batchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	inDir := viper.GetString("batch.in_dir")
	outDir := viper.GetString("batch.out_dir")
	instruction := viper.GetString("batch.instruction")
	preset := viper.GetString("batch.preset")
	workers := viper.GetInt("batch.workers")
	showProgress := viper.GetBool("batch.progress")
	force := viper.GetBool("batch.force")
	allowFailures := viper.GetBool("batch.allow_failures")

	if logger == nil {
		initLogging()
	}

	if inDir == "" || outDir == "" {
		return errors.New("--in-dir and --out-dir are required")
	}
	if instruction == "" && preset == "" {
		return errors.New("one of --instruction or --preset is required")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tasks, skipped, err := batchTasks(inDir, outDir, force)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Info("Nothing to do", "in_dir", inDir, "skipped", skipped)
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ed, err := newEditor(ctx)
	if err != nil {
		return err
	}
	opts, err := sessionOptions(ed, nil)
	if err != nil {
		return err
	}

	logger.Info("Starting batch edit",
		"in_dir", inDir,
		"out_dir", outDir,
		"images", len(tasks),
		"skipped", skipped,
		"workers", workers,
		"preset", preset,
	)

	progress := worker.NewProgress(len(tasks), skipped, showProgress, nil)
	pool := worker.New(worker.Config{
		Workers:    workers,
		Processor:  batchProcessor(opts, instruction, preset),
		OnProgress: progress.Callback(),
	})

	results := pool.Run(ctx, tasks)
	progress.Done()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("Edit failed", "input", r.Task.Input, "error", r.Err)
		}
	}
	logger.Info(progress.Summary())

	if failed > 0 {
		if allowFailures {
			logger.Warn("Some images failed, continuing due to --allow-failures", "failed_count", failed)
			return nil
		}
		return fmt.Errorf("%d of %d images failed", failed, len(tasks))
	}
	return nil
}

var batchExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// batchTasks lists the images of inDir in name order. Inputs whose output
// already exists are skipped unless force is set and counted in skipped.
func batchTasks(inDir, outDir string, force bool) (tasks []worker.Task, skipped int, err error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read input directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !batchExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		out := filepath.Join(outDir, base+".png")
		if !force {
			if _, err := os.Stat(out); err == nil {
				skipped++
				continue
			}
		}
		tasks = append(tasks, worker.Task{Input: filepath.Join(inDir, e.Name()), Output: out})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Input < tasks[j].Input })
	return tasks, skipped, nil
}

// batchProcessor edits one file per task in filter mode.
func batchProcessor(opts session.Options, instruction, preset string) worker.Processor {
	return worker.ProcessorFunc(func(ctx context.Context, task worker.Task) (string, error) {
		snap, err := applyEdit(ctx, opts, editRequest{
			Input:       task.Input,
			Mode:        string(session.ModeFilter),
			Instruction: instruction,
			Preset:      preset,
			Hotspot:     [2]int{-1, -1},
		})
		if err != nil {
			return "", err
		}
		if err := imageio.WriteFile(task.Output, snap); err != nil {
			return "", err
		}
		return task.Output, nil
	})
}
