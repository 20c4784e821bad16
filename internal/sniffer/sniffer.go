// Package sniffer guesses the container format of a Tally backup file from
// its leading bytes, before any decode strategy is committed to.
//
// Detection is deliberately best-effort: a result of FormatUnknown never
// fails the parse on its own. The container extractor still attempts every
// method in order; the sniff result only prioritizes the attempt order and
// improves the final error message when everything fails.
package sniffer

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"tally-analytics-service/pkg/logger"
)

// Format is the guessed container format of a backup file
type Format string

const (
	FormatGzip     Format = "gzip"
	FormatZip      Format = "zip"
	FormatTarGz    Format = "tar_gz"
	FormatTar      Format = "tar"
	FormatPlainXML Format = "plain_xml"
	FormatUTF16XML Format = "utf16_xml"
	FormatUnknown  Format = "unknown"
)

// SniffWindow is how many leading bytes are inspected. Real exports may
// carry a BOM or garbage before the first tag, so the XML markers are
// searched across the whole window, not just matched at offset zero.
const SniffWindow = 8192

// xmlMarkers are the substrings that identify Tally XML content. Matching is
// case-insensitive.
var xmlMarkers = []string{"<?xml", "<envelope", "<tallymessage"}

var (
	gzipMagic    = []byte{0x1f, 0x8b}
	zipMagic     = []byte("PK")
	utf16LEBOM   = []byte{0xff, 0xfe}
	utf16BEBOM   = []byte{0xfe, 0xff}
	tarUstarByte = 257 // "ustar" magic offset inside a tar header
)

// Result describes a sniff outcome
type Result struct {
	Format Format
	// MarkerOffset is the byte offset of the first XML marker found in the
	// window, or -1 when none was found.
	MarkerOffset int
}

// SniffFile reads the leading window of the file at path and guesses its format
func SniffFile(path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{Format: FormatUnknown, MarkerOffset: -1}, err
	}
	defer file.Close()

	window := make([]byte, SniffWindow)
	n, err := io.ReadFull(file, window)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Result{Format: FormatUnknown, MarkerOffset: -1}, err
	}

	result := Sniff(window[:n])
	logger.WithComponent("sniffer").WithFields(logger.Fields{
		"file_path":     path,
		"format":        string(result.Format),
		"marker_offset": result.MarkerOffset,
	}).Debug("Sniffed backup format")
	return result, nil
}

// Sniff guesses the container format from the leading bytes of a backup
// file. Binary magics are checked first in priority order, then the window
// is searched for an XML marker at any offset.
func Sniff(window []byte) Result {
	if len(window) == 0 {
		return Result{Format: FormatUnknown, MarkerOffset: -1}
	}

	if bytes.HasPrefix(window, gzipMagic) {
		if gzipWrapsTar(window) {
			return Result{Format: FormatTarGz, MarkerOffset: -1}
		}
		return Result{Format: FormatGzip, MarkerOffset: -1}
	}

	if bytes.HasPrefix(window, zipMagic) {
		return Result{Format: FormatZip, MarkerOffset: -1}
	}

	if isTar(window) {
		return Result{Format: FormatTar, MarkerOffset: -1}
	}

	if offset := FindXMLMarker(window); offset >= 0 {
		return Result{Format: FormatPlainXML, MarkerOffset: offset}
	}

	if offset := findUTF16Marker(window); offset >= 0 {
		return Result{Format: FormatUTF16XML, MarkerOffset: offset}
	}

	return Result{Format: FormatUnknown, MarkerOffset: -1}
}

// FindXMLMarker returns the offset of the first XML marker in the buffer,
// case-insensitive, or -1. Exposed because the container extractor reuses
// the same search against decompressed payloads. The comparison folds ASCII
// case byte by byte; lower-casing the buffer up front would re-encode any
// invalid UTF-8 bytes and shift every offset after them.
func FindXMLMarker(buf []byte) int {
	best := -1
	for _, marker := range xmlMarkers {
		if i := indexASCIIFold(buf, marker); i >= 0 {
			if best == -1 || i < best {
				best = i
			}
		}
	}
	return best
}

// indexASCIIFold finds the lower-case ASCII needle in buf, ignoring the case
// of ASCII letters in buf, without transforming buf.
func indexASCIIFold(buf []byte, needle string) int {
	if len(needle) == 0 || len(buf) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(buf); i++ {
		if matchASCIIFold(buf[i:], needle) {
			return i
		}
	}
	return -1
}

func matchASCIIFold(buf []byte, needle string) bool {
	for j := 0; j < len(needle); j++ {
		b := buf[j]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if b != needle[j] {
			return false
		}
	}
	return true
}

// HasXMLMarker reports whether the buffer contains any XML marker
func HasXMLMarker(buf []byte) bool {
	return FindXMLMarker(buf) >= 0
}

// HasXMLMarkerString is the string-content variant of HasXMLMarker, used
// after a candidate decoding has produced text.
func HasXMLMarkerString(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range xmlMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// findUTF16Marker looks for an XML marker encoded as UTF-16 (either byte
// order, with or without BOM). UTF-16 text interleaves ASCII with NUL
// bytes, so a widened search is needed; a plain substring match never
// fires on these files.
func findUTF16Marker(window []byte) int {
	searches := [][]byte{
		widenUTF16([]byte("<?xml"), true),
		widenUTF16([]byte("<?xml"), false),
		widenUTF16([]byte("<ENVELOPE"), true),
		widenUTF16([]byte("<ENVELOPE"), false),
		widenUTF16([]byte("<envelope"), true),
		widenUTF16([]byte("<envelope"), false),
	}
	best := -1
	for _, needle := range searches {
		if i := bytes.Index(window, needle); i >= 0 {
			if best == -1 || i < best {
				best = i
			}
		}
	}
	if best >= 0 {
		return best
	}

	// A UTF-16 BOM at offset zero is a strong enough hint on its own
	if bytes.HasPrefix(window, utf16LEBOM) || bytes.HasPrefix(window, utf16BEBOM) {
		return 0
	}
	return -1
}

func widenUTF16(ascii []byte, littleEndian bool) []byte {
	wide := make([]byte, 0, len(ascii)*2)
	for _, b := range ascii {
		if littleEndian {
			wide = append(wide, b, 0x00)
		} else {
			wide = append(wide, 0x00, b)
		}
	}
	return wide
}

// isTar checks for the "ustar" magic in the first tar header block
func isTar(window []byte) bool {
	if len(window) < tarUstarByte+5 {
		return false
	}
	return bytes.Equal(window[tarUstarByte:tarUstarByte+5], []byte("ustar"))
}

// gzipWrapsTar decompresses just enough of a gzip stream to check whether
// the payload is a tar archive. Errors mean "not provably tar" and the
// extractor will fall through the methods anyway.
func gzipWrapsTar(window []byte) bool {
	reader, err := gzip.NewReader(bytes.NewReader(window))
	if err != nil {
		return false
	}
	defer reader.Close()

	head := make([]byte, tarUstarByte+5)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return isTar(head[:n])
}
