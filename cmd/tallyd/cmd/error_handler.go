package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	tallyerrors "tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if tallyErr, ok := tallyerrors.AsTallyError(err); ok {
		return h.handleTallyError(tallyErr)
	}
	return h.handleGenericError(err)
}

// handleTallyError prints a TallyError with its context and suggestion
func (h *CLIErrorHandler) handleTallyError(err *tallyerrors.TallyError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}
	return err.GetExitCode()
}

// handleGenericError handles non-TallyError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

// getCategoryHelp provides category-specific troubleshooting guidance
func (h *CLIErrorHandler) getCategoryHelp(category tallyerrors.ErrorCategory) string {
	switch category {
	case tallyerrors.CategoryFile:
		return "File troubleshooting: verify the path, permissions and that the file is a Tally backup or XML export."
	case tallyerrors.CategoryFormat:
		return "Format troubleshooting: " + tallyerrors.ReexportHint + "."
	case tallyerrors.CategorySanitize:
		return "XML troubleshooting: the file's XML could not be repaired; a fresh export from Tally usually resolves this."
	case tallyerrors.CategoryExtraction:
		return "Extraction troubleshooting: the file parsed but contained no usable records; confirm masters were included in the export."
	case tallyerrors.CategoryConfiguration:
		return "Configuration troubleshooting: run with --help to see valid flags, or check your config file."
	default:
		return "Run with --verbose for more details."
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	if os.IsPermission(err) {
		return true
	}
	if errno, ok := err.(syscall.Errno); ok {
		return errno == syscall.EACCES || errno == syscall.EPERM
	}
	return strings.Contains(err.Error(), "permission denied")
}
