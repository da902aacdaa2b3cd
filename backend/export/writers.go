package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	SheetResponses = "Respuestas"
	SheetSummary   = "Resumen"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type column struct {
	title string
	width float64
}

var responseColumns = []column{
	{"Usuario", 30},
	{"Email", 35},
	{"Fecha de Envío", 18},
	{"N° Evaluación", 12},
	{"Dominio", 35},
	{"Subsección", 40},
	{"Ítem", 70},
	{"Respuesta", 28},
	{"Puntos", 8},
	{"Evidencia", 50},
	{"Observaciones", 50},
}

var summaryColumns = []column{
	{"N°", 6},
	{"Usuario", 30},
	{"Email", 35},
	{"Fecha de Envío", 18},
	{"Total Preguntas", 16},
	{"Respondidas", 14},
	{"No Aplica", 12},
	{"Puntos Obtenidos", 16},
	{"Puntos Máximos", 15},
	{"Promedio", 10},
	{"% Cumplimiento", 15},
}

func titles(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.title
	}
	return out
}

// WriteCSV writes the responses sheet as UTF-8 CSV with a byte order mark so
// spreadsheet tools pick the right encoding.
func WriteCSV(w io.Writer, rows []Row) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(titles(responseColumns)); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Name,
			r.Email,
			r.SubmittedAt,
			strconv.Itoa(r.Number),
			r.Domain,
			r.Subsection,
			r.Item,
			r.Response,
			r.PointsText(),
			r.Evidence,
			r.Observations,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the detailed responses and the per-evaluation summary as
// two sheets of one workbook.
func WriteXLSX(w io.Writer, rows []Row, summaries []SummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetResponses); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	responses := make([][]interface{}, len(rows))
	for i, r := range rows {
		var points interface{} = r.PointsText()
		if r.Points != nil {
			points = *r.Points
		}
		responses[i] = []interface{}{
			r.Name, r.Email, r.SubmittedAt, r.Number, r.Domain, r.Subsection,
			r.Item, r.Response, points, r.Evidence, r.Observations,
		}
	}
	if err := writeSheet(f, SheetResponses, responseColumns, responses, header); err != nil {
		return err
	}

	summary := make([][]interface{}, len(summaries))
	for i, s := range summaries {
		summary[i] = []interface{}{
			s.Number, s.Name, s.Email, s.SubmittedAt, s.Total, s.Answered,
			s.NotApplicable, s.Points, s.MaxPoints, s.AverageText(), s.PercentText(),
		}
	}
	if err := writeSheet(f, SheetSummary, summaryColumns, summary, header); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, cols []column, rows [][]interface{}, headerStyle int) error {
	head := make([]interface{}, len(cols))
	for i, c := range cols {
		head[i] = c.title
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, c.width); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
