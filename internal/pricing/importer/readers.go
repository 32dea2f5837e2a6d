package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Format is the file format of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DetectFormat picks XLSX when the filename or content type says so, and CSV
// otherwise.
func DetectFormat(filename, contentType string) Format {
	if strings.EqualFold(path.Ext(filename), ".xlsx") {
		return FormatXLSX
	}
	if strings.HasPrefix(strings.ToLower(contentType), xlsxContentType) {
		return FormatXLSX
	}
	return FormatCSV
}

// ImportCSV reads a comma separated file with a header row.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (Result, error) {
	records, err := ReadCSV(r)
	if err != nil {
		return Result{}, err
	}
	return im.Import(ctx, records)
}

// ImportXLSX reads the first sheet of a workbook.
func (im *Importer) ImportXLSX(ctx context.Context, data []byte) (Result, error) {
	records, err := ReadXLSX(data)
	if err != nil {
		return Result{}, err
	}
	return im.Import(ctx, records)
}

// ImportFile dispatches on format.
func (im *Importer) ImportFile(ctx context.Context, format Format, data []byte) (Result, error) {
	if format == FormatXLSX {
		return im.ImportXLSX(ctx, data)
	}
	return im.ImportCSV(ctx, bytes.NewReader(data))
}

// ReadCSV returns all records. Rows may have differing widths.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, invalidFile(eris.Wrap(err, "importer: read csv"))
	}
	return records, nil
}

// ReadXLSX returns the rows of the first sheet as strings.
func ReadXLSX(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, invalidFile(eris.Wrap(err, "importer: open xlsx"))
	}
	if len(f.Sheets) == 0 {
		return nil, invalidFile(eris.New("importer: workbook has no sheets"))
	}
	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
