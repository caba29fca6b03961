package main

import (
	"os"

	"speechcoach/pkg/config"
	"speechcoach/pkg/version"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	dataDir string

	logger = logrus.New()
	cfg    *config.Config
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	scoreStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "speechcoach",
	Short: "Record, transcribe and score speaking practice",
	Long: `speechcoach records a short spoken answer from the microphone, transcribes it,
scores it with simple lexical metrics and keeps a local history of your takes.

Quick Start:
  speechcoach permission grant     # allow microphone access
  speechcoach record               # record a take (30 to 60 seconds)
  speechcoach history list         # review past takes
  speechcoach serve                # run the local control API`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dataDir != "" {
			if err := os.Setenv("DATA_DIR", dataDir); err != nil {
				return err
			}
		}

		loaded, err := config.Load(logger)
		if err != nil {
			return err
		}
		if err := loaded.ApplyLogging(logger); err != nil {
			return err
		}

		// interactive commands keep stdout for their own output
		if cmd.Name() != serveCmd.Name() {
			if loaded.Logging.OutputFile == "" {
				logger.SetOutput(os.Stderr)
			}
			if !verbose && logger.GetLevel() > logrus.WarnLevel {
				logger.SetLevel(logrus.WarnLevel)
			}
		}
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides DATA_DIR)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(serveCmd, recordCmd, historyCmd, analyzeCmd, permissionCmd)
}
