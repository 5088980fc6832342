package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestParse_DocxExtractsParagraphText(t *testing.T) {
	docXML := `<?xml version="1.0"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` +
		`<w:p><w:r><w:t>This Agreement is governed by the laws of Delaware.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	doc, err := Parse(context.Background(), buildDocx(t, docXML), FormatDOCX, "msa.docx")
	if err != nil {
		t.Fatalf("parse docx: %v", err)
	}
	if !strings.Contains(doc.Text, "laws of Delaware") {
		t.Fatalf("expected paragraph text, got %q", doc.Text)
	}
	if !strings.Contains(doc.Text, "Second paragraph.") {
		t.Fatalf("expected second paragraph, got %q", doc.Text)
	}
	if doc.FileName != "msa.docx" {
		t.Fatalf("unexpected file name %q", doc.FileName)
	}
}

func TestParse_TextPassesThroughWithNormalizedNewlines(t *testing.T) {
	doc, err := Parse(context.Background(), []byte("line one\r\nline two\r\n"), FormatText, "notes.txt")
	if err != nil {
		t.Fatalf("parse text: %v", err)
	}
	if doc.Text != "line one\nline two" {
		t.Fatalf("unexpected normalized text %q", doc.Text)
	}
}

func TestParse_EmptyTextReturnsErrNoText(t *testing.T) {
	_, err := Parse(context.Background(), []byte("   \n\t "), FormatText, "blank.txt")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestParse_UnknownFormatRejected(t *testing.T) {
	_, err := Parse(context.Background(), []byte("hello"), Format("rtf"), "doc.rtf")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Parse(ctx, []byte("hello"), FormatText, "doc.txt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParse_DocSalvagesPrintableRuns(t *testing.T) {
	data := append([]byte{0xd0, 0xcf, 0x11, 0xe0, 0x00, 0x01}, []byte("Governing law: New York")...)
	data = append(data, 0x00, 0x02)
	data = append(data, []byte("ab")...) // run below threshold, dropped

	doc, err := Parse(context.Background(), data, FormatDOC, "legacy.doc")
	if err != nil {
		t.Fatalf("parse doc: %v", err)
	}
	if !strings.Contains(doc.Text, "Governing law: New York") {
		t.Fatalf("expected salvaged text, got %q", doc.Text)
	}
	if strings.Contains(doc.Text, "ab") && !strings.Contains(doc.Text, "law") {
		t.Fatalf("short runs should be dropped, got %q", doc.Text)
	}
}

func TestFormatFromFileName(t *testing.T) {
	cases := []struct {
		name string
		want Format
	}{
		{"contract.PDF", FormatPDF},
		{"contract.docx", FormatDOCX},
		{"contract.doc", FormatDOC},
		{"contract.txt", FormatText},
	}
	for _, tc := range cases {
		got, err := FormatFromFileName(tc.name)
		if err != nil {
			t.Fatalf("format for %s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("format for %s: got %s want %s", tc.name, got, tc.want)
		}
	}

	if _, err := FormatFromFileName("sheet.xlsx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for xlsx, got %v", err)
	}
}

func TestCombine_OrderAndSeparators(t *testing.T) {
	out := Combine([]Document{
		{FileName: "a.txt", Text: "first"},
		{FileName: "b.txt", Text: "second"},
	})

	if !strings.Contains(out, "=== a.txt ===\nfirst") {
		t.Fatalf("missing first document block: %q", out)
	}
	if !strings.Contains(out, "=== b.txt ===\nsecond") {
		t.Fatalf("missing second document block: %q", out)
	}
	if strings.Index(out, "a.txt") > strings.Index(out, "b.txt") {
		t.Fatalf("documents out of order: %q", out)
	}
}

func TestCombine_Empty(t *testing.T) {
	if out := Combine(nil); out != "" {
		t.Fatalf("expected empty string, got %q", out)
	}
}
