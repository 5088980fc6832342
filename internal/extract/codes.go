package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoCodes is returned when a candidate code sheet yields no entries.
var ErrNoCodes = errors.New("no candidate codes found")

// ParseCandidateCodes reads a counterparty code sheet (XLSX or CSV) into a
// code -> description map. Header columns are matched by keyword; when no
// header matches, the first two columns are used.
func ParseCandidateCodes(data []byte, fileName string) (map[string]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSXRows(data)
	case ".csv":
		rows, err = readCSVRows(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	if err != nil {
		return nil, fmt.Errorf("read code sheet file=%s: %w", fileName, err)
	}

	codes := rowsToCodes(rows)
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: file=%s", ErrNoCodes, fileName)
	}
	return codes, nil
}

func readXLSXRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readCSVRows(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func rowsToCodes(rows [][]string) map[string]string {
	if len(rows) == 0 {
		return nil
	}

	codeCol, descCol, skipHeader := sniffColumns(rows[0])

	codes := make(map[string]string)
	for i, row := range rows {
		if i == 0 && skipHeader {
			continue
		}
		if codeCol >= len(row) {
			continue
		}
		code := strings.TrimSpace(row[codeCol])
		if code == "" {
			continue
		}
		desc := ""
		if descCol >= 0 && descCol < len(row) {
			desc = strings.TrimSpace(row[descCol])
		}
		codes[code] = desc
	}
	return codes
}

// sniffColumns locates the code and description columns by header keyword.
// Returns column indexes and whether the first row is a header to skip.
func sniffColumns(header []string) (codeCol, descCol int, skipHeader bool) {
	codeCol, descCol = -1, -1
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case codeCol < 0 && containsAny(name, "code", "id", "key"):
			codeCol = i
		case descCol < 0 && containsAny(name, "description", "desc", "name", "title"):
			descCol = i
		}
	}
	if codeCol >= 0 {
		return codeCol, descCol, true
	}
	// No recognizable header, fall back to the first two columns.
	descCol = -1
	if len(header) > 1 {
		descCol = 1
	}
	return 0, descCol, false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
