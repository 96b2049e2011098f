package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// Exporter renders access-log entries for download.
type Exporter struct{}

// NewExporter constructs an Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

var csvHeader = []string{"at", "call_id", "user_id", "action", "permission", "resource_type", "resource_id", "granted", "reason"}

// WriteCSV encodes rows as CSV with a header line.
func (e *Exporter) WriteCSV(rows []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		resourceID := ""
		if row.ResourceID != nil {
			resourceID = strconv.FormatInt(*row.ResourceID, 10)
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.CallID.String(),
			strconv.FormatInt(row.UserID, 10),
			row.Action,
			row.Permission,
			row.ResourceType,
			resourceID,
			strconv.FormatBool(row.Granted),
			row.Reason,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
