package main

import (
	"fmt"
	"io"
	"strings"

	"speechcoach/pkg/analysis"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var analyzeYAML bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Score text without recording",
	Long:  `Score text passed as arguments, or read from stdin when no arguments are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}

		result := analysis.Analyze(text)
		out := cmd.OutOrStdout()

		if analyzeYAML {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(result)
		}

		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Score:"), scoreStyle.Render(result.ScoreText()+"/10"))
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Feedback:"), result.Feedback)
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d words, %d sentences, %.1f words per sentence",
			result.Metrics.WordCount, result.Metrics.SentenceCount, result.Metrics.AvgWordsPerSentence)))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeYAML, "yaml", false, "Print the result as YAML")
}
