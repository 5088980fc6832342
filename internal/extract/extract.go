package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Format identifies a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatDOC  Format = "doc"
	FormatText Format = "txt"
)

var (
	// ErrUnsupportedFormat is returned when the declared format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrNoText is returned when extraction yields no usable text.
	ErrNoText = errors.New("no text extracted from document")
)

// Document is the normalized text extracted from one source file.
type Document struct {
	FileName string
	Text     string
}

// FormatFromFileName derives the declared format from a file extension.
func FormatFromFileName(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".doc":
		return FormatDOC, nil
	case ".txt", ".text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// Parse extracts normalized text from a document blob of the declared format.
// Libraries used: github.com/ledongthuc/pdf (PDF); DOCX is unpacked directly.
func Parse(ctx context.Context, data []byte, format Format, fileName string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	case FormatDOC:
		text, err = extractDOC(data)
	case FormatText:
		text = string(data)
	default:
		return Document{}, fmt.Errorf("%w: %s (file %s)", ErrUnsupportedFormat, format, fileName)
	}
	if err != nil {
		return Document{}, fmt.Errorf("extract %s file=%s: %w", format, fileName, err)
	}

	text = normalizeText(text)
	if text == "" {
		return Document{}, fmt.Errorf("%w: file=%s format=%s", ErrNoText, fileName, format)
	}

	return Document{FileName: fileName, Text: text}, nil
}

// Combine concatenates document texts in input order with per-file separators.
func Combine(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s\n", doc.FileName, doc.Text))
	}
	return strings.Join(parts, "\n")
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if last := buf.Len(); last > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// minDOCRun is the shortest printable run kept when salvaging legacy .doc binaries.
const minDOCRun = 4

// extractDOC salvages text from the legacy binary Word format by keeping runs
// of printable characters. Layout is not recoverable, the text content is.
func extractDOC(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty doc data")
	}

	var buf strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= minDOCRun {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(run)
		}
		run = run[:0]
	}

	for _, b := range data {
		if b >= 0x20 && b < 0x7f || b == '\t' {
			run = append(run, b)
			continue
		}
		flush()
	}
	flush()

	return buf.String(), nil
}

// normalizeText unifies line endings and trims the result. Inner whitespace is
// preserved so citations can be matched verbatim against the extracted text.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
