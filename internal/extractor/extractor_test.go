package extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tallyerrors "tally-analytics-service/pkg/errors"
)

var sampleXML = []byte(`<?xml version="1.0"?><ENVELOPE><BODY><TALLYMESSAGE><LEDGER NAME="Cash"/></TALLYMESSAGE></BODY></ENVELOPE>`)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("creating extractor: %v", err)
	}
	return e
}

func writeTestFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func readPayload(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	return string(content)
}

func TestExtractGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(sampleXML)
	gz.Close()
	path := writeTestFile(t, "backup.tbk", buf.Bytes())

	e := newTestExtractor(t)
	payloadPath, attempts, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("gzip should succeed on the first method, attempts: %v", attempts)
	}
	if !strings.Contains(readPayload(t, payloadPath), "<LEDGER") {
		t.Error("payload does not contain the expected XML")
	}
}

func TestExtractZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// A non-XML entry first: the extractor must skip it
	junk, _ := zw.Create("readme.txt")
	junk.Write([]byte("not xml at all"))

	entry, _ := zw.Create("data/export.xml")
	entry.Write(sampleXML)
	zw.Close()

	path := writeTestFile(t, "backup.zip", buf.Bytes())

	e := newTestExtractor(t)
	payloadPath, _, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(readPayload(t, payloadPath), "<LEDGER") {
		t.Error("payload does not contain the expected XML")
	}
}

func TestExtractTar(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "export.xml", Mode: 0o644, Size: int64(len(sampleXML))})
	tw.Write(sampleXML)
	tw.Close()

	path := writeTestFile(t, "backup.tar", buf.Bytes())

	e := newTestExtractor(t)
	payloadPath, _, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(readPayload(t, payloadPath), "<LEDGER") {
		t.Error("payload does not contain the expected XML")
	}
}

func TestExtractTarGz(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	tw.WriteHeader(&tar.Header{Name: "export.xml", Mode: 0o644, Size: int64(len(sampleXML))})
	tw.Write(sampleXML)
	tw.Close()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(tarBuf.Bytes())
	gz.Close()

	path := writeTestFile(t, "backup.tar.gz", buf.Bytes())

	e := newTestExtractor(t)
	payloadPath, _, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(readPayload(t, payloadPath), "<LEDGER") {
		t.Error("payload does not contain the expected XML")
	}
}

func TestExtractPlainUTF8(t *testing.T) {
	path := writeTestFile(t, "export.xml", sampleXML)

	e := newTestExtractor(t)
	payloadPath, _, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(readPayload(t, payloadPath), "<LEDGER") {
		t.Error("payload does not contain the expected XML")
	}
}

func TestExtractUTF16LE(t *testing.T) {
	raw := []byte{0xff, 0xfe}
	for _, b := range sampleXML {
		raw = append(raw, b, 0x00)
	}
	path := writeTestFile(t, "export-utf16.xml", raw)

	e := newTestExtractor(t)
	payloadPath, _, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	payload := readPayload(t, payloadPath)
	if !strings.Contains(payload, "<LEDGER") {
		t.Error("payload does not contain the expected XML")
	}
	if strings.Contains(payload, "\x00") {
		t.Error("payload still contains NUL bytes, transcoding failed")
	}
}

func TestExtractBinaryWithEmbeddedXML(t *testing.T) {
	content := append(bytes.Repeat([]byte{0xA5}, 4096), sampleXML...)
	// Offset beyond the marker probe would only be caught by binary_scan;
	// keep it past SniffWindow would still work, but 4 KB exercises the
	// scan without a huge fixture
	path := writeTestFile(t, "backup.bin", content)

	e := newTestExtractor(t)
	payloadPath, attempts, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(attempts) == 0 {
		t.Error("binary content should fail earlier methods before succeeding")
	}
	payload := readPayload(t, payloadPath)
	if !strings.HasPrefix(payload, "<?xml") {
		t.Errorf("payload should start at the marker, got prefix %q", payload[:10])
	}
}

func TestExtractUnrecognized(t *testing.T) {
	content := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 1024)
	path := writeTestFile(t, "opaque.tbk", content)

	e := newTestExtractor(t)
	_, attempts, err := e.Extract(context.Background(), path)
	if err == nil {
		t.Fatal("expected a terminal error for unrecognizable content")
	}
	if !tallyerrors.HasCode(err, tallyerrors.CodeFormatUnrecognized) {
		t.Errorf("expected code %s, got %v", tallyerrors.CodeFormatUnrecognized, err)
	}
	if len(attempts) != 6 {
		t.Errorf("expected all 6 methods attempted, got %d", len(attempts))
	}

	tallyErr, _ := tallyerrors.AsTallyError(err)
	if !tallyErr.IsTerminal() {
		t.Error("format_unrecognized must be terminal")
	}
	if !strings.Contains(tallyErr.Suggestion, "re-export") {
		t.Errorf("terminal error should carry the re-export hint, got %q", tallyErr.Suggestion)
	}
}

func TestExtractCancelled(t *testing.T) {
	path := writeTestFile(t, "backup.xml", sampleXML)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestExtractor(t)
	_, _, err := e.Extract(ctx, path)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !tallyerrors.HasCode(err, tallyerrors.CodeCancelled) {
		t.Errorf("expected code %s, got %v", tallyerrors.CodeCancelled, err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig(t.TempDir()).Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if err := (&Config{}).Validate(); err == nil {
		t.Error("empty config should fail validation")
	}
	if _, err := New(nil); err == nil {
		t.Error("nil config should be rejected")
	}
}
