package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tally-analytics-service/cmd/tallyd/config"
	"tally-analytics-service/internal/analyzer"
	"tally-analytics-service/internal/parser"
	"tally-analytics-service/internal/reporter"
)

// Flags for the analyze command
var (
	backupFile   string
	outputFormat string
	outputFile   string
	noBreakdowns bool
	noDataNotes  bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Parse a Tally backup file and print its financial summary",
	Long: `Analyze parses a Tally backup or XML export, classifies every ledger
into Revenue, Expense, Assets or Liabilities and prints a financial summary
with top-N breakdowns.

Supported inputs: .tbk backups, gzip/zip/tar containers and raw XML exports
in UTF-8 or UTF-16.

Examples:
  # Human-readable summary on stdout
  tallyd analyze --file backup.tbk

  # JSON output to a file
  tallyd analyze --file export.xml --output-format json --output-file summary.json

  # Breakdown rows as CSV
  tallyd analyze --file backup.zip --output-format csv`,

	PreRunE: validateAnalyzeFlags,
	RunE:    runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&backupFile, "file", "i", "", "path to the Tally backup file (required)")
	analyzeCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	analyzeCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	analyzeCmd.Flags().BoolVar(&noBreakdowns, "no-breakdowns", false, "omit top-N breakdown sections")
	analyzeCmd.Flags().BoolVar(&noDataNotes, "no-data-notes", false, "omit data quality notes")

	analyzeCmd.MarkFlagRequired("file")

	viper.BindPFlag("file", analyzeCmd.Flags().Lookup("file"))
	viper.BindPFlag("output-format", analyzeCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", analyzeCmd.Flags().Lookup("output-file"))
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	backupFile = viper.GetString("file")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")

	if backupFile == "" {
		return fmt.Errorf("file is required")
	}

	info, err := os.Stat(backupFile)
	if os.IsNotExist(err) {
		return fmt.Errorf("backup file does not exist: %s", backupFile)
	}
	if err != nil {
		return fmt.Errorf("error accessing backup file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("backup path is a directory, expected a file: %s", backupFile)
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	errorHandler := NewCLIErrorHandler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parserConfig := config.CreateParserConfig()
	p, err := parser.New(parserConfig)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	outcome, err := p.ParseFile(ctx, backupFile)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	summary := analyzer.New().Summarize(outcome.Records)

	reportConfig := config.CreateReportConfig(outputFormat)
	reportConfig.IncludeBreakdowns = !noBreakdowns
	reportConfig.IncludeDataNotes = !noDataNotes

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	writer := os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			os.Exit(errorHandler.HandleError(err))
		}
		defer file.Close()
		writer = file
	}

	report := reporter.NewAnalysisReport(backupFile, outcome, summary)
	if err := generator.GenerateReport(report, writer); err != nil {
		os.Exit(errorHandler.HandleError(err))
	}
	return nil
}
