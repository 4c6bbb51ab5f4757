// package formatter renders cache contents, run history and run summaries as tables, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/pipeline"
	"github.com/desertthunder/musicfp/internal/repositories"
	"github.com/desertthunder/musicfp/internal/shared"
)

// Output formats accepted by the Write functions.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

var recordHeaders = []string{"OID", "Path", "Artist", "Album", "Title", "Format", "Duration", "Points"}

func recordRow(r models.FingerprintRecord) []string {
	return []string{
		r.CatalogID,
		r.Path,
		r.Artist,
		r.Album,
		r.Title,
		r.Format,
		FormatDuration(r.Fingerprint.Duration),
		strconv.Itoa(len(r.Fingerprint.Points)),
	}
}

// RecordsTable renders cache rows as a table.
func RecordsTable(records []models.FingerprintRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, recordRow(r))
	}
	return renderTable(recordHeaders, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}

// RecordsToCSV converts cache rows to CSV without fingerprint data.
func RecordsToCSV(records []models.FingerprintRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(recordHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range records {
		if err := writer.Write(recordRow(r)); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteRecords writes cache rows to w in the given format.
func WriteRecords(w io.Writer, records []models.FingerprintRecord, format string) error {
	var data []byte
	var err error

	switch format {
	case FormatTable, "":
		data = []byte(RecordsTable(records) + "\n")
	case FormatCSV:
		data, err = RecordsToCSV(records)
	case FormatJSON:
		data, err = shared.MarshalJSON(records, true)
		data = append(data, '\n')
	default:
		return fmt.Errorf("%w: unknown format %q (table, csv, json)", shared.ErrInvalidFlag, format)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// RunsTable renders the run history.
func RunsTable(runs []models.Run) string {
	headers := []string{"ID", "Started", "Finished", "Status", "Subtree", "Workers", "Chunks", "Files", "Stored", "Dupes", "Failed"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		subtree := r.Subtree
		if subtree == "" {
			subtree = "/"
		}
		started := r.StartedAt
		rows = append(rows, []string{
			shortID(r.ID),
			formatTime(&started),
			formatTime(r.FinishedAt),
			string(r.Status),
			subtree,
			strconv.Itoa(r.Workers),
			strconv.Itoa(r.Chunks),
			humanize.Comma(int64(r.Files)),
			humanize.Comma(int64(r.Persisted)),
			humanize.Comma(int64(r.Duplicates)),
			humanize.Comma(int64(r.Failed)),
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	return renderTable(headers, rows, aligns)
}

// WriteRuns writes the run history to w in the given format.
func WriteRuns(w io.Writer, runs []models.Run, format string) error {
	switch format {
	case FormatTable, "":
		_, err := fmt.Fprintln(w, RunsTable(runs))
		return err
	case FormatJSON:
		data, err := shared.MarshalJSON(runs, true)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("%w: unknown format %q (table, json)", shared.ErrInvalidFlag, format)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StatsTable renders a cache summary followed by per-format counts.
func StatsTable(s *repositories.Stats) string {
	summary := renderTable(
		[]string{"Metric", "Value"},
		[][]string{
			{"Fingerprints", humanize.Comma(int64(s.Rows))},
			{"Artists", humanize.Comma(int64(s.Artists))},
			{"Albums", humanize.Comma(int64(s.Albums))},
			{"Fingerprint data", humanize.Bytes(uint64(s.Bytes))},
		},
		[]columnAlignment{alignLeft, alignRight},
	)

	formats := make([]string, 0, len(s.Formats))
	for f := range s.Formats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	rows := make([][]string, 0, len(formats))
	for _, f := range formats {
		rows = append(rows, []string{f, humanize.Comma(int64(s.Formats[f]))})
	}
	return summary + "\n" + renderTable([]string{"Format", "Files"}, rows, []columnAlignment{alignLeft, alignRight})
}

// RunSummary renders the outcome of an extraction run.
func RunSummary(r *pipeline.RunResult) string {
	rows := [][]string{
		{"Files queued", humanize.Comma(int64(r.Files))},
		{"Chunks", strconv.Itoa(r.Chunks)},
		{"Workers", strconv.Itoa(r.Workers)},
		{"Stored", humanize.Comma(int64(r.Persisted))},
		{"Already cached", humanize.Comma(int64(r.Duplicates))},
		{"Path conflicts", humanize.Comma(int64(r.Conflicts))},
		{"Missing tags", humanize.Comma(int64(r.Invalid))},
		{"Missing files", humanize.Comma(int64(r.Missing))},
		{"Extraction failures", humanize.Comma(int64(r.Failed))},
		{"Catalog flagged", humanize.Comma(int64(r.Flagged))},
	}
	if r.SinkErrors > 0 {
		rows = append(rows, []string{"Batches not persisted", strconv.Itoa(r.SinkErrors)})
	}
	if r.DeadWorkers > 0 {
		rows = append(rows, []string{"Dead workers", strconv.Itoa(r.DeadWorkers)})
	}
	return renderTable([]string{"Run", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}
