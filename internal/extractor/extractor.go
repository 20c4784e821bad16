// Package extractor turns an uploaded backup file into a working XML
// payload on disk.
//
// Nothing about a Tally backup's extension can be trusted: a .tbk may be a
// gzip stream, a renamed zip, a raw UTF-16 XML dump, or a proprietary binary
// with an XML document buried at some offset. The extractor therefore runs a
// fixed cascade of methods, each of which must both succeed mechanically AND
// yield content containing an XML marker before it counts as a hit. A method
// that "works" but produces marker-less bytes is recorded as a failed
// attempt and the cascade continues.
//
// Only after every method has failed does extraction raise a terminal
// FormatUnrecognized error, carrying the attempt log and, when possible, a
// company name recovered from UTF-16 fragments in the binary so the user at
// least learns whose data the unreadable file held.
package extractor

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"tally-analytics-service/internal/sniffer"
	"tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// Config holds configuration for container extraction
type Config struct {
	// WorkDir is the scoped temp directory the payload is written into.
	// Owned by the enclosing parse operation, which deletes it on all exit
	// paths.
	WorkDir string

	// MaxBinaryScan caps how many bytes of a binary file are loaded for
	// the offset scan (method 6). Files larger than this are scanned only
	// within the first chunk.
	MaxBinaryScan int64

	// MarkerProbe is how many leading bytes of a candidate payload are
	// checked for an XML marker.
	MarkerProbe int
}

// DefaultConfig returns an extraction configuration with standard limits
func DefaultConfig(workDir string) *Config {
	return &Config{
		WorkDir:       workDir,
		MaxBinaryScan: 10 * 1024 * 1024,
		MarkerProbe:   sniffer.SniffWindow,
	}
}

// Validate checks if the extraction configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return fmt.Errorf("work directory cannot be empty")
	}
	if c.MaxBinaryScan <= 0 {
		return fmt.Errorf("max binary scan must be positive")
	}
	if c.MarkerProbe <= 0 {
		return fmt.Errorf("marker probe must be positive")
	}
	return nil
}

// Attempt records one extraction method that was tried and why it failed.
// Kept for diagnostics and for the terminal error message.
type Attempt struct {
	Method string `json:"method"`
	Reason string `json:"reason"`
}

// Extractor runs the container extraction cascade
type Extractor struct {
	config *Config
	logger logger.Logger
}

// New creates an Extractor with the given configuration
func New(config *Config) (*Extractor, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "extractor_config", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "extractor_config", config, err)
	}

	return &Extractor{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("extractor"),
	}, nil
}

// Extract runs the method cascade against filePath and returns the path of
// the extracted XML payload inside the work directory. The attempt log is
// returned even on success so callers can surface partial diagnostics.
func (e *Extractor) Extract(ctx context.Context, filePath string) (string, []Attempt, error) {
	sniffResult, err := sniffer.SniffFile(filePath)
	if err != nil {
		return "", nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
	}

	e.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"format":    string(sniffResult.Format),
	}).Info("Starting container extraction")

	type method struct {
		name string
		run  func(context.Context, string) (string, error)
	}

	methods := []method{
		{"gzip", e.extractGzip},
		{"zip", e.extractZip},
		{"tar.gz", e.extractTarGz},
		{"tar", e.extractTar},
		{"plain_text", e.extractPlainText},
		{"binary_scan", e.extractBinaryScan},
	}

	var attempts []Attempt
	for _, m := range methods {
		if err := ctx.Err(); err != nil {
			return "", attempts, errors.InternalError(errors.CodeCancelled, "container extraction", err)
		}

		payloadPath, err := m.run(ctx, filePath)
		if err == nil {
			e.logger.WithFields(logger.Fields{
				"file_path": filePath,
				"method":    m.name,
				"payload":   payloadPath,
			}).Info("Container extraction succeeded")
			return payloadPath, attempts, nil
		}

		attempts = append(attempts, Attempt{Method: m.name, Reason: err.Error()})
		e.logger.WithFields(logger.Fields{
			"file_path": filePath,
			"method":    m.name,
			"reason":    err.Error(),
		}).Debug("Extraction method failed, trying next")
	}

	hint := e.recoverCompanyHint(filePath)
	names := make([]string, 0, len(attempts))
	for _, a := range attempts {
		names = append(names, a.Method)
	}
	return "", attempts, errors.FormatError(errors.CodeFormatUnrecognized, filePath, names, hint, nil)
}

// payloadFile opens a fresh output file in the work directory
func (e *Extractor) payloadFile(stem string) (*os.File, error) {
	path := filepath.Join(e.config.WorkDir, stem)
	return os.Create(path)
}

// probeAndCopy verifies that the reader's leading bytes contain an XML
// marker, then streams the full content (probe included) into a payload
// file. The probe-before-commit order keeps garbage payloads from ever
// landing on disk as "successes".
func (e *Extractor) probeAndCopy(r io.Reader, stem string) (string, error) {
	probe := make([]byte, e.config.MarkerProbe)
	n, err := io.ReadFull(r, probe)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("reading payload head: %w", err)
	}
	probe = probe[:n]

	if !sniffer.HasXMLMarker(probe) {
		return "", fmt.Errorf("decoded content contains no XML marker")
	}

	out, err := e.payloadFile(stem)
	if err != nil {
		return "", fmt.Errorf("creating payload file: %w", err)
	}
	defer out.Close()

	writer := bufio.NewWriter(out)
	if _, err := writer.Write(probe); err != nil {
		return "", fmt.Errorf("writing payload head: %w", err)
	}
	if _, err := io.Copy(writer, r); err != nil {
		return "", fmt.Errorf("writing payload body: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("flushing payload: %w", err)
	}
	return out.Name(), nil
}

// extractGzip handles method 1: gzip decompression
func (e *Extractor) extractGzip(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return "", fmt.Errorf("not a gzip stream: %w", err)
	}
	defer gz.Close()

	return e.probeAndCopy(gz, "payload_gzip.xml")
}

// extractZip handles method 2: zip extraction. Every entry is probed; the
// first whose own leading bytes contain an XML marker wins.
func (e *Extractor) extractZip(ctx context.Context, filePath string) (string, error) {
	reader, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("not a zip archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rc, err := entry.Open()
		if err != nil {
			continue
		}
		payloadPath, err := e.probeAndCopy(rc, "payload_zip.xml")
		rc.Close()
		if err == nil {
			return payloadPath, nil
		}
	}
	return "", fmt.Errorf("no zip entry contains an XML marker")
}

// extractTarGz handles method 3: gzip-wrapped tar
func (e *Extractor) extractTarGz(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return "", fmt.Errorf("not a gzip stream: %w", err)
	}
	defer gz.Close()

	return e.scanTar(ctx, tar.NewReader(gz))
}

// extractTar handles method 4: plain tar
func (e *Extractor) extractTar(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return e.scanTar(ctx, tar.NewReader(file))
}

func (e *Extractor) scanTar(ctx context.Context, tr *tar.Reader) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("no tar entry contains an XML marker")
		}
		if err != nil {
			return "", fmt.Errorf("not a tar archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		payloadPath, err := e.probeAndCopy(tr, "payload_tar.xml")
		if err == nil {
			return payloadPath, nil
		}
		// Probe consumed this entry; move on to the next one
	}
}

// extractPlainText handles method 5: treat the original file as XML text
// under each candidate encoding, UTF-16 first when a BOM says so. Decoding
// streams through x/text transformers so large files never load fully.
func (e *Extractor) extractPlainText(ctx context.Context, filePath string) (string, error) {
	head, err := readHead(filePath, e.config.MarkerProbe)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, name := range CandidateEncodings(head) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		file, err := os.Open(filePath)
		if err != nil {
			return "", err
		}

		decoded, err := DecodeReader(name, file)
		if err != nil {
			file.Close()
			lastErr = err
			continue
		}

		payloadPath, err := e.probeAndCopy(decoded, "payload_text.xml")
		file.Close()
		if err == nil {
			e.logger.WithFields(logger.Fields{
				"file_path": filePath,
				"encoding":  name,
			}).Debug("Plain-text extraction matched encoding")
			return payloadPath, nil
		}
		lastErr = fmt.Errorf("%s: %w", name, err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate encoding produced XML content")
	}
	return "", lastErr
}

// extractBinaryScan handles method 6: search the raw bytes for an XML
// marker at any offset and slice from there. The scan window is capped so
// multi-gigabyte binaries only have their first chunk inspected.
func (e *Extractor) extractBinaryScan(ctx context.Context, filePath string) (string, error) {
	chunk, err := readHead(filePath, int(e.config.MaxBinaryScan))
	if err != nil {
		return "", err
	}

	offset := sniffer.FindXMLMarker(chunk)
	if offset < 0 {
		// The marker may be UTF-16 encoded inside the binary; decode the
		// chunk and search again.
		for _, name := range []string{EncodingUTF16LE, EncodingUTF16BE} {
			decoded, err := DecodeBytes(name, chunk)
			if err != nil {
				continue
			}
			if i := sniffer.FindXMLMarker(decoded); i >= 0 {
				return e.writeBinarySlice(filePath, decoded[i:])
			}
		}
		return "", fmt.Errorf("no XML marker found in the first %d bytes", len(chunk))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return "", err
	}
	return e.probeAndCopy(file, "payload_binary.xml")
}

func (e *Extractor) writeBinarySlice(filePath string, content []byte) (string, error) {
	return e.probeAndCopy(bytes.NewReader(content), "payload_binary.xml")
}

// recoverCompanyHint scans the binary for UTF-16 text fragments that look
// like a company name, purely to improve the terminal error message. Tally
// binary backups store the company name as UTF-16 near the header even when
// the rest of the file is opaque.
func (e *Extractor) recoverCompanyHint(filePath string) string {
	head, err := readHead(filePath, 64*1024)
	if err != nil {
		return ""
	}

	best := ""
	var current []rune
	flush := func() {
		candidate := strings.TrimSpace(string(current))
		current = current[:0]
		if len(candidate) >= 4 && len(candidate) <= 64 && looksLikeName(candidate) && len(candidate) > len(best) {
			best = candidate
		}
	}

	// UTF-16 LE text shows up as printable-ASCII bytes interleaved with
	// NULs; walk byte pairs and collect runs.
	for i := 0; i+1 < len(head); i += 2 {
		b, hi := head[i], head[i+1]
		if hi == 0x00 && b >= 0x20 && b < 0x7f {
			current = append(current, rune(b))
			continue
		}
		flush()
	}
	flush()
	return best
}

// looksLikeName filters recovered fragments to plausible company names:
// mostly letters, at least one space or a long single word.
func looksLikeName(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters*2 >= len(s)
}

func readHead(filePath string, limit int) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
