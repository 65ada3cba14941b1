package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/store"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the session archive written by serve --archive",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions, most recent first",
	RunE:  runArchiveList,
}

var archiveExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every snapshot of an archived session to a directory",
	RunE:  runArchiveExport,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveExportCmd)

	archiveCmd.PersistentFlags().String("archive", "", "SQLite archive path (defaults to serve.archive)")
	archiveExportCmd.Flags().String("id", "", "Session id")
	archiveExportCmd.Flags().String("out-dir", ".", "Output directory")

	if err := viper.BindPFlag("archive.path", archiveCmd.PersistentFlags().Lookup("archive")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	if err := viper.BindPFlag("archive.id", archiveExportCmd.Flags().Lookup("id")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	if err := viper.BindPFlag("archive.out_dir", archiveExportCmd.Flags().Lookup("out-dir")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func openArchive() (*store.Store, error) {
	path := viper.GetString("archive.path")
	if path == "" {
		path = viper.GetString("serve.archive")
	}
	if path == "" {
		return nil, errors.New("no archive configured (use --archive or serve.archive)")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return store.Open(path)
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	sessions, err := archive.List()
	if err != nil {
		return err
	}
	printSummaries(cmd.OutOrStdout(), sessions)
	return nil
}

func printSummaries(w io.Writer, sessions []store.Summary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no archived sessions")
		return
	}
	fmt.Fprintf(w, "%-36s  %9s  %6s  %s\n", "ID", "SNAPSHOTS", "CURSOR", "UPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%-36s  %9d  %6d  %s\n", s.ID, s.Snapshots, s.Cursor, s.UpdatedAt.Local().Format(time.DateTime))
	}
}

func runArchiveExport(cmd *cobra.Command, args []string) error {
	id := viper.GetString("archive.id")
	outDir := viper.GetString("archive.out_dir")
	if id == "" {
		return errors.New("--id is required")
	}

	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	sess, err := archive.Load(id)
	if err != nil {
		return err
	}

	paths, err := exportSession(sess, outDir)
	if err != nil {
		return err
	}
	logger.Info("Session exported", "id", id, "snapshots", len(paths), "cursor", sess.Cursor, "out_dir", outDir)
	return nil
}

// exportSession writes snapshot i as <id>_<i>.<ext>. The snapshot at the
// cursor is additionally written as <id>_current.<ext>.
func exportSession(sess store.Session, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(sess.Snapshots)+1)
	for i, snap := range sess.Snapshots {
		p := filepath.Join(outDir, fmt.Sprintf("%s_%03d%s", sess.ID, i, extension(snap.MIMEType)))
		if err := os.WriteFile(p, snap.Data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	if sess.Cursor >= 0 && sess.Cursor < len(sess.Snapshots) {
		snap := sess.Snapshots[sess.Cursor]
		p := filepath.Join(outDir, sess.ID+"_current"+extension(snap.MIMEType))
		if err := os.WriteFile(p, snap.Data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func extension(mime string) string {
	switch mime {
	case imageio.MIMEJPEG:
		return ".jpg"
	case imageio.MIMEWebP:
		return ".webp"
	default:
		return ".png"
	}
}
