package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// exportColumns defines the ordered export columns. One row per matrix cell
// so the export always reconciles to |models| x |strategies| x |tasks|.
var exportColumns = []string{
	"job_id",
	"provider",
	"model",
	"strategy",
	"task_id",
	"row_status",
	"error_kind",
	"blind_id",
	"attempts",
	"input_tokens",
	"output_tokens",
	"cost_usd",
	"latency_ms",
	"voice_match",
	"coherence",
	"engagement",
	"brief_fit",
	"overall",
	"composite",
	"verdict",
	"edit_minutes",
	"eval_seconds",
	"notes",
}

// Row status markers. Failed jobs stay in the export so the row count
// reconciles to the matrix; "excluded" marks them as outside the analysis.
const (
	rowScored   = "scored"
	rowPending  = "pending"
	rowExcluded = "excluded"
)

// ExportCSV writes one CSV row per record.
func ExportCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range records {
		if err := cw.Write(buildRow(r)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// ExportCSVFile writes the records to a CSV file at path.
func ExportCSVFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close()

	if err := ExportCSV(f, records); err != nil {
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

// ExportXLSX writes the records to an XLSX workbook with a single "results"
// sheet carrying the same columns as the CSV export.
func ExportXLSX(path string, records []Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range exportColumns {
		header.AddCell().SetString(col)
	}
	for _, r := range records {
		row := sheet.AddRow()
		for _, v := range buildRow(r) {
			row.AddCell().SetString(v)
		}
	}

	return eris.Wrap(f.Save(path), "export: save xlsx")
}

func buildRow(r Record) []string {
	status := rowExcluded
	switch {
	case r.Scored():
		status = rowScored
	case r.Result != nil:
		status = rowPending
	}

	row := []string{
		r.Job.ID,
		r.Job.Model.Provider,
		r.Job.Model.Model,
		string(r.Job.Strategy),
		r.Job.TaskID,
		status,
		r.Job.ErrorKind,
		"",
		strconv.Itoa(r.Job.Attempts),
		"", "", "", "",
		"", "", "", "", "", "",
		"", "", "", "",
	}

	if r.Result != nil {
		row[7] = r.Result.BlindID
		row[9] = strconv.Itoa(r.Result.InputTokens)
		row[10] = strconv.Itoa(r.Result.OutputTokens)
		row[11] = formatFloat(r.Result.CostUSD)
		row[12] = formatFloat(r.Result.LatencyMS)
	}
	if r.Scored() {
		s := r.Eval.Scores
		row[13] = strconv.Itoa(s.VoiceMatch)
		row[14] = strconv.Itoa(s.Coherence)
		row[15] = strconv.Itoa(s.Engagement)
		row[16] = strconv.Itoa(s.BriefFit)
		row[17] = strconv.Itoa(s.Overall)
		row[18] = formatFloat(s.Composite())
		row[19] = string(r.Eval.Verdict)
		row[20] = strconv.Itoa(r.Eval.EditMinutes)
		row[21] = strconv.Itoa(r.Eval.EvalSeconds)
		row[22] = r.Eval.Notes
	}
	return row
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
