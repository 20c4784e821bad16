// Package parser orchestrates the full backup-to-records pipeline: format
// sniffing, container extraction, sanitization and record extraction.
//
// Each parse runs in its own temp working directory, removed on every exit
// path. Payload size decides the extraction strategy: large payloads go
// through the memory-flat streaming extractor with only a line-oriented
// ampersand repair; everything else gets the full in-memory sanitize pass
// and the tree extractor's richer fallbacks.
package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tally-analytics-service/internal/extractor"
	"tally-analytics-service/internal/models"
	"tally-analytics-service/internal/sanitizer"
	"tally-analytics-service/internal/sniffer"
	"tally-analytics-service/internal/tallyxml"
	tallyerrors "tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// Strategy names reported in parse outcomes
const (
	StrategyTree      = "tree"
	StrategyStreaming = "streaming"
)

// Config holds parser settings
type Config struct {
	// TempRoot is where per-parse working directories are created.
	// Empty means the system temp directory.
	TempRoot string

	// StreamThreshold is the payload size in bytes at which extraction
	// switches to the streaming strategy
	StreamThreshold int64

	// MaxFileSize rejects uploads larger than this before any work is
	// done. Zero disables the check.
	MaxFileSize int64
}

// DefaultConfig returns the default parser configuration
func DefaultConfig() *Config {
	return &Config{
		TempRoot:        os.TempDir(),
		StreamThreshold: 100 * 1024 * 1024,
		MaxFileSize:     2 * 1024 * 1024 * 1024,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.StreamThreshold <= 0 {
		return fmt.Errorf("stream threshold must be positive, got %d", c.StreamThreshold)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max file size cannot be negative, got %d", c.MaxFileSize)
	}
	return nil
}

// Outcome is the result of one parse operation
type Outcome struct {
	Records  *models.RecordSet
	Format   sniffer.Format
	Strategy string
	Attempts []extractor.Attempt
	Duration time.Duration
}

// Parser runs the backup parsing pipeline
type Parser struct {
	config *Config
	logger logger.Logger
}

// New creates a parser with the given configuration
func New(config *Config) (*Parser, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, tallyerrors.ConfigurationError(tallyerrors.CodeInvalidConfig, "parser", config, err)
	}
	return &Parser{
		config: config,
		logger: logger.WithComponent("parser"),
	}, nil
}

// ParseFile runs the full pipeline against the backup file at path
func (p *Parser) ParseFile(ctx context.Context, path string) (*Outcome, error) {
	started := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tallyerrors.FileError(tallyerrors.CodeFileNotFound, path, err)
		}
		return nil, tallyerrors.FileError(tallyerrors.CodeFilePermission, path, err)
	}
	if p.config.MaxFileSize > 0 && info.Size() > p.config.MaxFileSize {
		return nil, tallyerrors.FileError(tallyerrors.CodeFileTooLarge, path, nil).
			WithContext("size_bytes", info.Size()).
			WithContext("limit_bytes", p.config.MaxFileSize)
	}

	workDir := filepath.Join(p.config.TempRoot, "tally-parse-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, tallyerrors.FileError(tallyerrors.CodeTempDirError, workDir, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			p.logger.WithError(err).WithFields(logger.Fields{
				"work_dir": workDir,
			}).Warn("Failed to remove parse working directory")
		}
	}()

	log := p.logger.WithFields(logger.Fields{
		"file_path":  path,
		"size_bytes": info.Size(),
		"work_dir":   workDir,
	})
	log.Info("Starting backup parse")

	sniffed, err := sniffer.SniffFile(path)
	if err != nil {
		return nil, tallyerrors.FileError(tallyerrors.CodeFilePermission, path, err)
	}

	ext, err := extractor.New(extractor.DefaultConfig(workDir))
	if err != nil {
		return nil, err
	}
	payloadPath, attempts, err := ext.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	payloadInfo, err := os.Stat(payloadPath)
	if err != nil {
		return nil, tallyerrors.FileError(tallyerrors.CodeFilePermission, payloadPath, err)
	}

	outcome := &Outcome{
		Format:   sniffed.Format,
		Attempts: attempts,
	}

	if payloadInfo.Size() >= p.config.StreamThreshold {
		outcome.Strategy = StrategyStreaming
		outcome.Records, err = p.parseStreaming(ctx, workDir, payloadPath)
	} else {
		outcome.Strategy = StrategyTree
		outcome.Records, err = p.parseTree(ctx, payloadPath)
	}
	if err != nil {
		return nil, err
	}

	outcome.Records.EnsureCompany()
	if outcome.Records.IsEmpty() {
		return nil, tallyerrors.ExtractionError(tallyerrors.CodeNoDataFound, filepath.Base(path), nil).
			WithSuggestion(tallyerrors.ReexportHint)
	}

	outcome.Duration = time.Since(started)
	log.WithFields(logger.Fields{
		"format":      string(outcome.Format),
		"strategy":    outcome.Strategy,
		"counts":      outcome.Records.Counts(),
		"duration_ms": outcome.Duration.Milliseconds(),
	}).Info("Backup parse complete")
	return outcome, nil
}

// parseTree loads the payload, runs the full sanitize-and-repair pass and
// extracts records from a document tree
func (p *Parser) parseTree(ctx context.Context, payloadPath string) (*models.RecordSet, error) {
	raw, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, tallyerrors.FileError(tallyerrors.CodeFilePermission, payloadPath, err)
	}

	text := sanitizer.Sanitize(raw)
	text, err = sanitizer.ValidateAndRepair(text)
	if err != nil {
		return nil, err
	}

	return tallyxml.NewTreeExtractor().Extract(ctx, text)
}

// parseStreaming applies the line-oriented ampersand repair and streams
// records without loading the payload
func (p *Parser) parseStreaming(ctx context.Context, workDir, payloadPath string) (*models.RecordSet, error) {
	fixedPath := filepath.Join(workDir, "payload-fixed.xml")
	if err := sanitizer.AmpersandFixFile(payloadPath, fixedPath); err != nil {
		return nil, tallyerrors.FileError(tallyerrors.CodeFilePermission, payloadPath, err)
	}
	return tallyxml.NewStreamExtractor().ExtractFile(ctx, fixedPath)
}
