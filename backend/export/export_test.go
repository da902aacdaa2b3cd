package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"evalsurvey/backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSource struct {
	evals   []models.Evaluation
	answers []models.Answer
	err     error
}

func (f *fakeSource) ExportEvaluations(context.Context, []uuid.UUID) ([]models.Evaluation, error) {
	return f.evals, f.err
}

func (f *fakeSource) ExportAnswers(context.Context, []uuid.UUID) ([]models.Answer, error) {
	return f.answers, nil
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func item(domainCode, domainTitle, subCode, subTitle, code, title string) *models.Item {
	return &models.Item{
		Code:  code,
		Title: title,
		Subsection: &models.Subsection{
			Code:   subCode,
			Title:  subTitle,
			Domain: &models.Domain{Code: domainCode, Title: domainTitle},
		},
	}
}

func dataset(t *testing.T) *Dataset {
	t.Helper()
	newer := models.Evaluation{ID: uuid.New(), Context: map[string]interface{}{
		"userName":    "Ana Pérez",
		"userEmail":   "ana@example.com",
		"submittedAt": "2025-03-04T09:05:00Z",
	}}
	older := models.Evaluation{ID: uuid.New(), Context: map[string]interface{}{}}
	src := &fakeSource{
		evals: []models.Evaluation{newer, older},
		answers: []models.Answer{
			{EvaluationID: newer.ID, Score: intp(1), Item: item("D2", "Seguridad", "2.1", "Riesgos", "2.1.1", "Plan"), Evidence: strp("acta")},
			{EvaluationID: newer.ID, Score: intp(2), Item: item("D1", "Gestión", "1.1", "Liderazgo", "1.1.1", "Política")},
			{EvaluationID: newer.ID, NotApplicable: true, Item: item("D1", "Gestión", "1.1", "Liderazgo", "1.1.2", "Comité")},
			{EvaluationID: older.ID, Item: item("D1", "Gestión", "1.1", "Liderazgo", "1.1.1", "Política")},
		},
	}
	ds, err := NewLoader(src).Load(context.Background(), nil)
	require.NoError(t, err)
	return ds
}

func TestLoaderGroupsAndSortsAnswers(t *testing.T) {
	ds := dataset(t)
	require.Len(t, ds.Evaluations, 2)
	answers := ds.Answers[ds.Evaluations[0].ID]
	require.Len(t, answers, 3)
	assert.Equal(t, "1.1.1", answers[0].Item.Code)
	assert.Equal(t, "1.1.2", answers[1].Item.Code)
	assert.Equal(t, "2.1.1", answers[2].Item.Code)
}

func TestLoaderPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewLoader(&fakeSource{err: boom}).Load(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestSubmitterFallbacks(t *testing.T) {
	s := SubmitterOf(map[string]interface{}{"userEmail": "x@y.z"}, time.UTC)
	assert.Equal(t, "x@y.z", s.Name)
	assert.Equal(t, "x@y.z", s.Email)
	assert.Equal(t, "N/A", s.SubmittedAt)

	s = SubmitterOf(nil, time.UTC)
	assert.Equal(t, "Anónimo", s.Name)
	assert.Equal(t, "-", s.Email)

	s = SubmitterOf(map[string]interface{}{"submittedAt": "2025-12-31T23:59:00Z"}, time.UTC)
	assert.Equal(t, "31/12/2025 23:59", s.SubmittedAt)
}

func TestResponseLabel(t *testing.T) {
	assert.Equal(t, "No Aplica", ResponseLabel(true, intp(2)))
	assert.Equal(t, "Cumple (2)", ResponseLabel(false, intp(2)))
	assert.Equal(t, "Cumple Parcialmente (1)", ResponseLabel(false, intp(1)))
	assert.Equal(t, "No Cumple (0)", ResponseLabel(false, intp(0)))
	assert.Equal(t, "Sin respuesta", ResponseLabel(false, nil))
}

func TestRows(t *testing.T) {
	rows := Rows(dataset(t), time.UTC)
	require.Len(t, rows, 4)

	first := rows[0]
	assert.Equal(t, "Ana Pérez", first.Name)
	assert.Equal(t, "04/03/2025 09:05", first.SubmittedAt)
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "Gestión", first.Domain)
	assert.Equal(t, "Liderazgo", first.Subsection)
	assert.Equal(t, "1.1.1 - Política", first.Item)
	assert.Equal(t, "2", first.PointsText())
	assert.Equal(t, "-", first.Evidence)

	assert.Equal(t, "No Aplica", rows[1].Response)
	assert.Equal(t, "-", rows[1].PointsText())
	assert.Equal(t, "acta", rows[2].Evidence)

	last := rows[3]
	assert.Equal(t, 2, last.Number)
	assert.Equal(t, "Anónimo", last.Name)
	assert.Equal(t, "Sin respuesta", last.Response)
	assert.Equal(t, "-", last.PointsText())
}

func TestSummaries(t *testing.T) {
	sums := Summaries(dataset(t), time.UTC)
	require.Len(t, sums, 2)

	s := sums[0]
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Answered)
	assert.Equal(t, 1, s.NotApplicable)
	assert.Equal(t, 3, s.Points)
	assert.Equal(t, 4, s.MaxPoints)
	assert.Equal(t, "1.50", s.AverageText())
	assert.Equal(t, "75.0%", s.PercentText())

	assert.Equal(t, "0", sums[1].AverageText())
	assert.Equal(t, "0%", sums[1].PercentText())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Rows(dataset(t), time.UTC)))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "Usuario", records[0][0])
	assert.Equal(t, "Observaciones", records[0][10])
	assert.Equal(t, "1.1.1 - Política", records[1][6])
}

func TestWriteCSVQuotes(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{{Submitter: Submitter{Name: "Pérez, Ana", Email: "-", SubmittedAt: "N/A"}, Observations: "dijo \"ok\""}}
	require.NoError(t, WriteCSV(&buf, rows))
	assert.Contains(t, buf.String(), `"Pérez, Ana"`)
	assert.Contains(t, buf.String(), `"dijo ""ok"""`)
}

func TestWriteXLSX(t *testing.T) {
	ds := dataset(t)
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Rows(ds, time.UTC), Summaries(ds, time.UTC)))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetResponses, SheetSummary}, f.GetSheetList())

	rows, err := f.GetRows(SheetResponses)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Ítem", rows[0][6])
	assert.Equal(t, "2", rows[1][8])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "75.0%", summary[1][10])

	width, err := f.GetColWidth(SheetResponses, "G")
	require.NoError(t, err)
	assert.Equal(t, 70.0, width)
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "respuestas_2025-07-01.csv", FileName(at, "csv"))
	assert.Equal(t, "respuestas_2025-07-01.xlsx", FileName(at, "xlsx"))
}
