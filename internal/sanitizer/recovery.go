package sanitizer

import (
	"encoding/xml"
	"io"
	"strings"

	tallyerrors "tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// numeric-entity form targeted by the repair tiers
var numericEntityPrefix = "&#"

// ValidateAndRepair runs a strict well-formedness check over sanitized XML
// text. When the check fails it escalates through repair tiers before
// giving up:
//
//  1. tolerant tokenization (HTML entities allowed, strictness off); the
//     downstream extractors use the same settings, so passing here means
//     the document is recoverable as-is
//  2. numeric-entity stripping in a window around the reported error line
//  3. numeric-entity stripping across the whole document
//
// The returned text is what downstream parsing should consume. An error is
// only returned when every tier fails, carrying the strict parser's line
// and column.
func ValidateAndRepair(text string) (string, error) {
	line, col, err := strictCheck(text)
	if err == nil {
		return text, nil
	}

	log := logger.WithComponent("sanitizer")
	log.WithFields(logger.Fields{
		"line":   line,
		"column": col,
	}).WithError(err).Warn("Strict XML check failed, attempting recovery")

	// Tier 1: tolerant tokenization
	if tolerantCheck(text) == nil {
		log.Info("Document is parseable in tolerant mode, keeping text as-is")
		return text, nil
	}

	// Tier 2: strip numeric entities near the error line
	if line > 0 {
		repaired := stripNumericEntitiesNearLine(text, line, 2)
		if repaired != text {
			if _, _, checkErr := strictCheck(repaired); checkErr == nil {
				log.WithFields(logger.Fields{"line": line}).
					Info("Recovered by stripping numeric entities near error line")
				return repaired, nil
			}
			text = repaired
		}
	}

	// Tier 3: strip numeric entities everywhere
	repaired := stripAllNumericEntities(text)
	if repaired != text {
		if _, _, checkErr := strictCheck(repaired); checkErr == nil {
			log.Info("Recovered by stripping all numeric entities")
			return repaired, nil
		}
		if tolerantCheck(repaired) == nil {
			log.Info("Document parseable in tolerant mode after entity stripping")
			return repaired, nil
		}
	}

	return "", tallyerrors.SanitizeError(tallyerrors.CodeMalformedXML, line, col, err)
}

// strictCheck tokenizes the whole document with a strict decoder and
// returns the error position on failure
func strictCheck(text string) (line, col int, err error) {
	decoder := xml.NewDecoder(strings.NewReader(text))
	decoder.Strict = true
	for {
		_, tokenErr := decoder.Token()
		if tokenErr == io.EOF {
			return 0, 0, nil
		}
		if tokenErr != nil {
			if syntaxErr, ok := tokenErr.(*xml.SyntaxError); ok {
				return syntaxErr.Line, 0, tokenErr
			}
			return 0, 0, tokenErr
		}
	}
}

// tolerantCheck tokenizes with the same forgiving settings the streaming
// extractor uses
func tolerantCheck(text string) error {
	decoder := xml.NewDecoder(strings.NewReader(text))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// stripNumericEntitiesNearLine removes numeric character references on
// lines within the window around errorLine (1-based)
func stripNumericEntitiesNearLine(text string, errorLine, window int) string {
	lines := strings.Split(text, "\n")
	lo := errorLine - 1 - window
	hi := errorLine - 1 + window
	if lo < 0 {
		lo = 0
	}
	if hi >= len(lines) {
		hi = len(lines) - 1
	}

	changed := false
	for i := lo; i <= hi; i++ {
		if strings.Contains(lines[i], numericEntityPrefix) {
			lines[i] = stripAllNumericEntities(lines[i])
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

// stripAllNumericEntities removes every numeric character reference,
// well-formed or not, from the text
func stripAllNumericEntities(text string) string {
	if !strings.Contains(text, numericEntityPrefix) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] == '&' && i+1 < len(text) && text[i+1] == '#' {
			if length := entityLen(text[i:]); length > 0 {
				i += length
				continue
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}
