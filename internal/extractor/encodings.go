package extractor

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Candidate text encodings tried when treating a backup as plain XML.
// Order matters: a BOM promotes the matching UTF-16 variant to the front,
// otherwise UTF-8 is tried first and the single-byte fallbacks last.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16-le"
	EncodingUTF16BE = "utf-16-be"
	EncodingUTF16   = "utf-16"
	EncodingLatin1  = "latin-1"
	EncodingCP1252  = "cp1252"
)

var (
	bomUTF8    = []byte{0xef, 0xbb, 0xbf}
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// DetectBOM returns the encoding implied by a byte-order mark at the start
// of the buffer and the BOM's length, or ("", 0) when no BOM is present.
func DetectBOM(buf []byte) (string, int) {
	if bytes.HasPrefix(buf, bomUTF8) {
		return EncodingUTF8, len(bomUTF8)
	}
	// UTF-16 BOMs are a prefix of nothing else we care about; LE checked
	// first because Tally on Windows emits it overwhelmingly more often.
	if bytes.HasPrefix(buf, bomUTF16LE) {
		return EncodingUTF16LE, len(bomUTF16LE)
	}
	if bytes.HasPrefix(buf, bomUTF16BE) {
		return EncodingUTF16BE, len(bomUTF16BE)
	}
	return "", 0
}

// CandidateEncodings returns the encoding names to try for the given
// leading bytes, BOM-detected encoding first.
func CandidateEncodings(head []byte) []string {
	ordered := []string{
		EncodingUTF8,
		EncodingUTF16LE,
		EncodingUTF16BE,
		EncodingUTF16,
		EncodingLatin1,
		EncodingCP1252,
	}

	bomEncoding, _ := DetectBOM(head)
	if bomEncoding == "" {
		return ordered
	}

	result := []string{bomEncoding}
	for _, name := range ordered {
		if name != bomEncoding {
			result = append(result, name)
		}
	}
	return result
}

// decoderFor maps an encoding name to its x/text decoder
func decoderFor(name string) (*encoding.Decoder, error) {
	switch name {
	case EncodingUTF8:
		return unicode.UTF8.NewDecoder(), nil
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder(), nil
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(), nil
	case EncodingUTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder(), nil
	case EncodingCP1252:
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
}

// DecodeBytes decodes the whole buffer under the named encoding
func DecodeBytes(name string, raw []byte) ([]byte, error) {
	decoder, err := decoderFor(name)
	if err != nil {
		return nil, err
	}
	return decoder.Bytes(raw)
}

// DecodeReader wraps r with a streaming decoder for the named encoding, so
// multi-gigabyte payloads are transcoded without being held in memory.
func DecodeReader(name string, r io.Reader) (io.Reader, error) {
	decoder, err := decoderFor(name)
	if err != nil {
		return nil, err
	}
	return decoder.Reader(r), nil
}
