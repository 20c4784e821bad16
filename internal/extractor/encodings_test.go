package extractor

import (
	"strings"
	"testing"
)

func TestDetectBOM(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		encoding  string
		bomLength int
	}{
		{"utf-8 bom", []byte{0xef, 0xbb, 0xbf, '<'}, EncodingUTF8, 3},
		{"utf-16 le bom", []byte{0xff, 0xfe, '<', 0x00}, EncodingUTF16LE, 2},
		{"utf-16 be bom", []byte{0xfe, 0xff, 0x00, '<'}, EncodingUTF16BE, 2},
		{"no bom", []byte("<?xml"), "", 0},
		{"empty", nil, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoding, length := DetectBOM(tt.buf)
			if encoding != tt.encoding || length != tt.bomLength {
				t.Errorf("DetectBOM = (%s, %d), want (%s, %d)", encoding, length, tt.encoding, tt.bomLength)
			}
		})
	}
}

func TestCandidateEncodingsOrder(t *testing.T) {
	// No BOM: UTF-8 leads
	noBOM := CandidateEncodings([]byte("<?xml"))
	if noBOM[0] != EncodingUTF8 {
		t.Errorf("first candidate without BOM = %s, want %s", noBOM[0], EncodingUTF8)
	}

	// UTF-16 LE BOM promotes that encoding to the front
	leBOM := CandidateEncodings([]byte{0xff, 0xfe, '<', 0x00})
	if leBOM[0] != EncodingUTF16LE {
		t.Errorf("first candidate with LE BOM = %s, want %s", leBOM[0], EncodingUTF16LE)
	}

	// Every candidate appears exactly once
	seen := make(map[string]int)
	for _, name := range leBOM {
		seen[name]++
	}
	for name, count := range seen {
		if count != 1 {
			t.Errorf("encoding %s appears %d times", name, count)
		}
	}
	if len(leBOM) != 6 {
		t.Errorf("expected 6 candidates, got %d", len(leBOM))
	}
}

func TestDecodeBytesUTF16LE(t *testing.T) {
	raw := make([]byte, 0)
	for _, b := range []byte("<?xml") {
		raw = append(raw, b, 0x00)
	}

	decoded, err := DecodeBytes(EncodingUTF16LE, raw)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if string(decoded) != "<?xml" {
		t.Errorf("decoded = %q, want %q", decoded, "<?xml")
	}
}

func TestDecodeReaderStreams(t *testing.T) {
	reader, err := DecodeReader(EncodingLatin1, strings.NewReader("caf\xe9"))
	if err != nil {
		t.Fatalf("DecodeReader: %v", err)
	}
	buf := make([]byte, 16)
	n, _ := reader.Read(buf)
	if got := string(buf[:n]); got != "café" {
		t.Errorf("decoded = %q, want %q", got, "café")
	}
}

func TestUnsupportedEncoding(t *testing.T) {
	if _, err := DecodeBytes("ebcdic", []byte("x")); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}
