package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "photoedit",
	Short: "Mask-driven photo editing backed by a generative image model",
	Long: `photoedit edits photos with a generative image service.

Regions are selected by painting a mask, clicking a hotspot or picking a crop
rectangle. Every accepted edit becomes a snapshot that can be undone. The
same session model is available over HTTP (serve), for single files (edit)
and for whole directories (batch).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("locale", "en", "Language for user-facing messages (en, de)")
	rootCmd.PersistentFlags().String("model", "", "Image model (default "+defaultModelName+")")
	rootCmd.PersistentFlags().String("png-compression", "default", "PNG compression (default, speed, best, none)")
	rootCmd.PersistentFlags().Int("grow", 0, "Grow painted mask regions by this many native pixels before submitting")
	rootCmd.PersistentFlags().Float64("brush-radius", 20, "Brush radius in display pixels")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"verbose", "verbose"},
		{"log_format", "log-format"},
		{"locale", "locale"},
		{"gemini.model", "model"},
		{"png.compression", "png-compression"},
		{"mask.grow_px", "grow"},
		{"mask.brush_radius", "brush-radius"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("PHOTOEDIT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
