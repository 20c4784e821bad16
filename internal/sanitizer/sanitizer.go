// Package sanitizer repairs the XML corruption found in real-world Tally
// exports before any parser sees the content.
//
// The repairs are ordered and each is independently testable: encoding
// resolution, BOM stripping, leading-garbage removal, control-character
// removal, invalid-codepoint removal, bare-ampersand escaping, and invalid
// numeric-entity removal. Strict parsing is then attempted, with escalating
// recovery tiers (see recovery.go) before a MalformedXml error is surfaced.
package sanitizer

import (
	"bufio"
	"os"
	"strings"
	"unicode/utf8"

	"tally-analytics-service/internal/extractor"
	"tally-analytics-service/internal/sniffer"
	"tally-analytics-service/pkg/logger"
)

// markers that open real Tally XML content, lowercase for comparison
var leadMarkers = []string{"<?xml", "<envelope", "<tallymessage"}

// Sanitize decodes raw backup bytes and applies every repair step,
// returning XML text that a strict parser has a fighting chance with.
// Sanitize never fails: the worst input degrades to lossily-decoded,
// heavily-stripped text which the parse stage then judges.
func Sanitize(raw []byte) string {
	text, encodingUsed := resolveEncoding(raw)

	logger.WithComponent("sanitizer").WithFields(logger.Fields{
		"bytes":    len(raw),
		"encoding": encodingUsed,
	}).Debug("Sanitizing XML payload")

	text = StripBOM(text)
	text = RemoveLeadingGarbage(text)
	text = RemoveControlChars(text)
	text = RemoveInvalidCodepoints(text)
	text = EscapeBareAmpersands(text)
	text = RemoveInvalidNumericEntities(text)
	return text
}

// resolveEncoding decodes raw bytes trying encodings in BOM-priority order
// and accepts the first decoding whose left-stripped content starts with an
// XML marker. Falls back to lossy UTF-8 when none qualify.
func resolveEncoding(raw []byte) (string, string) {
	for _, name := range extractor.CandidateEncodings(raw) {
		decoded, err := extractor.DecodeBytes(name, raw)
		if err != nil {
			continue
		}
		if startsWithMarker(string(decoded)) {
			return string(decoded), name
		}
	}

	// Lossy fallback: replace undecodable sequences rather than give up
	return strings.ToValidUTF8(string(raw), "�"), "utf-8-lossy"
}

// startsWithMarker reports whether the left-stripped text begins with one of
// the XML markers, case-insensitive. BOM characters count as strippable.
func startsWithMarker(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\r\n\uFEFF\uFFFE\x00")
	lower := strings.ToLower(trimmed)
	for _, marker := range leadMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}

// StripBOM removes byte-order-mark characters from the start of the text.
// U+FFFE shows up when a UTF-16 payload was decoded with the wrong byte
// order; it is just as unwelcome as a real BOM.
func StripBOM(text string) string {
	return strings.TrimLeft(text, "\uFEFF\uFFFE")
}

// RemoveLeadingGarbage discards everything before the first XML marker.
// When no marker exists at all, non-printable and non-'<' characters are
// stripped from the front as a last resort so a tag-like start survives.
func RemoveLeadingGarbage(text string) string {
	lower := strings.ToLower(text)
	best := -1
	for _, marker := range leadMarkers {
		if i := strings.Index(lower, marker); i >= 0 && (best == -1 || i < best) {
			best = i
		}
	}
	if best >= 0 {
		return text[best:]
	}

	return strings.TrimLeftFunc(text, func(r rune) bool {
		if r == '<' {
			return false
		}
		return r < 0x20 || r == 0x7f || !utf8.ValidRune(r)
	})
}

// RemoveControlChars strips the control characters XML 1.0 forbids:
// 0x00-0x08, 0x0B-0x0C, 0x0E-0x1F and 0x7F-0x9F. Tab, LF and CR survive.
func RemoveControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isForbiddenControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isForbiddenControl(r rune) bool {
	switch {
	case r >= 0x00 && r <= 0x08:
		return true
	case r == 0x0B || r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r >= 0x7F && r <= 0x9F:
		return true
	}
	return false
}

// IsValidXMLChar reports whether r is allowed in an XML 1.0 document:
// 0x9, 0xA, 0xD, 0x20-0xD7FF, 0xE000-0xFFFD and the supplementary planes.
func IsValidXMLChar(r rune) bool {
	switch {
	case r == 0x9 || r == 0xA || r == 0xD:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// RemoveInvalidCodepoints drops every character outside the valid XML
// ranges. This catches surrogate halves and U+FFFE/U+FFFF that survive the
// control-character pass.
func RemoveInvalidCodepoints(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !IsValidXMLChar(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeBareAmpersands replaces every '&' that does not begin a recognized
// entity (&name;, &#digits;, &#xhex;) with &amp;. Tally narration fields
// are full of bare ampersands ("M/s Singh & Sons") that crash strict
// parsers.
func EscapeBareAmpersands(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '&' {
			b.WriteByte(c)
			continue
		}
		if entityLen(text[i:]) > 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteString("&amp;")
	}
	return b.String()
}

// entityLen returns the length of a well-formed entity at the start of s
// (including '&' and ';'), or 0. Entity names are capped at 32 characters;
// longer runs before a ';' are treated as bare ampersands.
func entityLen(s string) int {
	if len(s) < 3 || s[0] != '&' {
		return 0
	}

	limit := len(s)
	if limit > 34 {
		limit = 34
	}

	i := 1
	if s[1] == '#' {
		i = 2
		hex := false
		if i < limit && (s[i] == 'x' || s[i] == 'X') {
			hex = true
			i++
		}
		start := i
		for i < limit && isEntityDigit(s[i], hex) {
			i++
		}
		if i == start || i >= limit || s[i] != ';' {
			return 0
		}
		return i + 1
	}

	start := i
	for i < limit && isEntityNameChar(s[i], i == start) {
		i++
	}
	if i == start || i >= limit || s[i] != ';' {
		return 0
	}
	return i + 1
}

func isEntityDigit(c byte, hex bool) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	if hex {
		return (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	}
	return false
}

func isEntityNameChar(c byte, first bool) bool {
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	if !first && c >= '0' && c <= '9' {
		return true
	}
	return false
}

// RemoveInvalidNumericEntities deletes numeric character references whose
// decoded code point falls outside the valid XML ranges. The literal
// character cleanup cannot catch these: "&#1;" is seven perfectly legal
// characters that a strict parser still refuses to expand.
func RemoveInvalidNumericEntities(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		if c != '&' || i+2 >= len(text) || text[i+1] != '#' {
			b.WriteByte(c)
			i++
			continue
		}

		length := entityLen(text[i:])
		if length == 0 {
			b.WriteByte(c)
			i++
			continue
		}

		entity := text[i : i+length]
		if r, ok := decodeNumericEntity(entity); ok && IsValidXMLChar(r) {
			b.WriteString(entity)
		}
		// Invalid reference: drop it entirely
		i += length
	}
	return b.String()
}

// decodeNumericEntity parses "&#NNN;" or "&#xHHH;" into its code point
func decodeNumericEntity(entity string) (rune, bool) {
	body := entity[2 : len(entity)-1] // strip "&#" and ";"
	base := 10
	if len(body) > 0 && (body[0] == 'x' || body[0] == 'X') {
		base = 16
		body = body[1:]
	}
	if body == "" {
		return 0, false
	}

	var value int64
	for i := 0; i < len(body); i++ {
		d := digitValue(body[i])
		if d < 0 || int64(d) >= int64(base) {
			return 0, false
		}
		value = value*int64(base) + int64(d)
		if value > 0x10FFFF {
			return 0, false
		}
	}
	return rune(value), true
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// AmpersandFixFile performs the lighter, line-oriented ampersand repair
// used for large payloads on the streaming path, where the full in-memory
// sanitize pass would double peak memory. Only bare-ampersand escaping is
// applied; the streaming extractor's tolerant decoder absorbs the rest.
func AmpersandFixFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	scanner := bufio.NewScanner(src)
	// Voucher narrations can run long; allow lines up to 4 MB
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(dst)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = StripBOM(line)
			first = false
		}
		if strings.ContainsRune(line, '&') {
			line = EscapeBareAmpersands(line)
		}
		if _, err := writer.WriteString(line); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return writer.Flush()
}

// ContainsMarker reports whether sanitized text still carries an XML marker.
// Used as a cheap post-sanitize sanity check.
func ContainsMarker(text string) bool {
	return sniffer.HasXMLMarkerString(text)
}
