// Package importer turns a payment export (CSV or XLSX) into staged payments.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rental-receivables-recon/internal/models"
)

var (
	ErrEmptyFile     = errors.New("file has no data rows")
	ErrMissingColumn = errors.New("required column missing")
	ErrUnsupported   = errors.New("unsupported file type")
)

type column int

const (
	colClient column = iota
	colAmount
	colDate
	colOrder
	colReceiver
	colStatus
)

var aliases = map[string]column{
	"client":             colClient,
	"client_id":          colClient,
	"cliente":            colClient,
	"amount":             colAmount,
	"monto":              colAmount,
	"importe":            colAmount,
	"authorization_date": colDate,
	"fecha_autorizacion": colDate,
	"date":               colDate,
	"fecha":              colDate,
	"order":              colOrder,
	"reference":          colOrder,
	"orden":              colOrder,
	"referencia":         colOrder,
	"receiver":           colReceiver,
	"receptor":           colReceiver,
	"name":               colReceiver,
	"nombre":             colReceiver,
	"status":             colStatus,
	"estatus":            colStatus,
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2006-01-02 15:04:05"}

// Parse reads rows from data, picking the format from the file extension.
func Parse(filename string, data []byte) ([]models.StagedPayment, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", "":
		records, err = readCSV(data)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	return mapRecords(records)
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	switch {
	case bytes.Contains(firstLine, []byte("\t")):
		reader.Comma = '\t'
	case bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")):
		reader.Comma = ';'
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("open xlsx: workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

func mapRecords(records [][]string) ([]models.StagedPayment, error) {
	if len(records) < 2 {
		return nil, ErrEmptyFile
	}

	index := map[column]int{}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if c, ok := aliases[key]; ok {
			if _, seen := index[c]; !seen {
				index[c] = i
			}
		}
	}
	if _, ok := index[colAmount]; !ok {
		return nil, fmt.Errorf("%w: amount", ErrMissingColumn)
	}

	var rows []models.StagedPayment
	for n, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		get := func(c column) string {
			i, ok := index[c]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		p := models.StagedPayment{
			ID:                   uuid.New(),
			RowNumber:            n + 2,
			ClientRef:            get(colClient),
			RawAmount:            get(colAmount),
			RawAuthorizationDate: get(colDate),
			OrderRef:             get(colOrder),
			ReceiverName:         get(colReceiver),
			SourceStatus:         get(colStatus),
			ProcessingStatus:     models.StatusPending,
			Amount:               decimal.Zero,
			AdjustmentAmount:     decimal.Zero,
		}
		if amount, ok := ParseAmount(p.RawAmount); ok {
			p.Amount = amount
		}
		if d, ok := parseDate(p.RawAuthorizationDate); ok {
			p.AuthorizationDate = &d
		}
		rows = append(rows, p)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// ParseAmount reads a currency amount such as "$1,250.00", rounded to cents.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isBlank(record []string) bool {
	return strings.TrimSpace(strings.Join(record, "")) == ""
}
