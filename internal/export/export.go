// Package export writes detection results: the per-record anomaly table and
// the JSON run report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/OldStager01/packet-anomaly/internal/features"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

var csvHeader = []string{
	"timestamp",
	"packet_length",
	"source_ip",
	"dest_ip",
	"payload_sum",
	"payload_len",
	"Anomaly",
}

// DataExporter writes run results to files.
type DataExporter struct{}

func NewDataExporter() *DataExporter {
	return &DataExporter{}
}

// ExportCSV writes the anomaly table, replacing any existing file.
func (e *DataExporter) ExportCSV(report *models.RunReport, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteCSV(file, report.Records); err != nil {
		return err
	}
	return file.Close()
}

// ExportJSON writes the run report.
func (e *DataExporter) ExportJSON(report *models.RunReport, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteJSON(file, report); err != nil {
		return err
	}
	return file.Close()
}

// WriteCSV writes one row per record in input order. IP columns carry the
// integer encoding and the anomaly flag is written as True or False.
func WriteCSV(w io.Writer, records []models.ScoredRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Record.Timestamp,
			strconv.FormatInt(rec.Record.PacketLength, 10),
			strconv.FormatUint(uint64(features.EncodeIP(rec.Record.SourceIP)), 10),
			strconv.FormatUint(uint64(features.EncodeIP(rec.Record.DestIP)), 10),
			strconv.FormatInt(rec.Record.PayloadSum, 10),
			strconv.FormatInt(rec.Record.PayloadLen, 10),
			formatBool(rec.Anomaly),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func WriteJSON(w io.Writer, report *models.RunReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
