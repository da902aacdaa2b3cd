// Package export turns stored evaluations into spreadsheet rows.
package export

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"evalsurvey/backend/models"
	"evalsurvey/backend/scoring"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	LabelNotApplicable = "No Aplica"
	LabelNoAnswer      = "Sin respuesta"
	anonymous          = "Anónimo"
	empty              = "-"
	dateLayout         = "02/01/2006 15:04"
)

var scoreLabels = map[int]string{
	2: "Cumple (2)",
	1: "Cumple Parcialmente (1)",
	0: "No Cumple (0)",
}

// Source reads what an export needs. EvaluationRepository satisfies it.
type Source interface {
	ExportEvaluations(ctx context.Context, ids []uuid.UUID) ([]models.Evaluation, error)
	ExportAnswers(ctx context.Context, ids []uuid.UUID) ([]models.Answer, error)
}

// Dataset is the loaded selection: evaluations newest first and their answers.
type Dataset struct {
	Evaluations []models.Evaluation
	Answers     map[uuid.UUID][]models.Answer
}

type Loader struct {
	src Source
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// Load fetches evaluations and answers concurrently. An empty ids slice
// selects every evaluation.
func (l *Loader) Load(ctx context.Context, ids []uuid.UUID) (*Dataset, error) {
	var (
		evals   []models.Evaluation
		answers []models.Answer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		evals, err = l.src.ExportEvaluations(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		answers, err = l.src.ExportAnswers(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load export data: %w", err)
	}

	ds := &Dataset{Evaluations: evals, Answers: make(map[uuid.UUID][]models.Answer, len(evals))}
	for _, a := range answers {
		ds.Answers[a.EvaluationID] = append(ds.Answers[a.EvaluationID], a)
	}
	for id := range ds.Answers {
		sortAnswers(ds.Answers[id])
	}
	return ds, nil
}

func sortAnswers(answers []models.Answer) {
	key := func(a models.Answer) [3]string {
		var k [3]string
		if a.Item == nil {
			return k
		}
		k[2] = a.Item.Code
		if a.Item.Subsection != nil {
			k[1] = a.Item.Subsection.Code
			if a.Item.Subsection.Domain != nil {
				k[0] = a.Item.Subsection.Domain.Code
			}
		}
		return k
	}
	sort.SliceStable(answers, func(i, j int) bool {
		ki, kj := key(answers[i]), key(answers[j])
		for n := range ki {
			if ki[n] != kj[n] {
				return ki[n] < kj[n]
			}
		}
		return false
	})
}

// Submitter is the identity recorded in an evaluation's context.
type Submitter struct {
	Name        string
	Email       string
	SubmittedAt string
}

// SubmitterOf reads userName, userEmail and submittedAt from the context,
// formatting the time in loc.
func SubmitterOf(evalCtx map[string]interface{}, loc *time.Location) Submitter {
	name := contextString(evalCtx, "userName")
	email := contextString(evalCtx, "userEmail")
	s := Submitter{Name: name, Email: email, SubmittedAt: "N/A"}
	if s.Name == "" {
		s.Name = email
	}
	if s.Name == "" {
		s.Name = anonymous
	}
	if s.Email == "" {
		s.Email = empty
	}
	if raw := contextString(evalCtx, "submittedAt"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			s.SubmittedAt = t.In(loc).Format(dateLayout)
		}
	}
	return s
}

func contextString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// ResponseLabel is the human label for an answer.
func ResponseLabel(notApplicable bool, score *int) string {
	if notApplicable {
		return LabelNotApplicable
	}
	if score != nil {
		if label, ok := scoreLabels[*score]; ok {
			return label
		}
	}
	return LabelNoAnswer
}

// Row is one line of the detailed responses sheet.
type Row struct {
	Submitter
	Number       int
	Domain       string
	Subsection   string
	Item         string
	Response     string
	Points       *int
	Evidence     string
	Observations string
}

func (r Row) PointsText() string {
	if r.Points == nil {
		return empty
	}
	return strconv.Itoa(*r.Points)
}

// Rows flattens the dataset. Evaluations are numbered from 1 in the
// dataset's newest-first order.
func Rows(ds *Dataset, loc *time.Location) []Row {
	var rows []Row
	for i, eval := range ds.Evaluations {
		sub := SubmitterOf(eval.Context, loc)
		for _, a := range ds.Answers[eval.ID] {
			row := Row{
				Submitter:    sub,
				Number:       i + 1,
				Domain:       "N/A",
				Subsection:   "N/A",
				Item:         " - N/A",
				Response:     ResponseLabel(a.NotApplicable, a.Score),
				Evidence:     orDash(a.Evidence),
				Observations: orDash(a.Observations),
			}
			if !a.NotApplicable {
				row.Points = a.Score
			}
			if it := a.Item; it != nil {
				row.Item = it.Code + " - " + it.Title
				if it.Subsection != nil {
					row.Subsection = it.Subsection.Title
					if it.Subsection.Domain != nil {
						row.Domain = it.Subsection.Domain.Title
					}
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// SummaryRow is one line of the per-evaluation summary sheet.
type SummaryRow struct {
	Submitter
	Number int
	scoring.Summary
}

func (s SummaryRow) AverageText() string {
	if s.Answered == 0 {
		return "0"
	}
	return strconv.FormatFloat(s.Average, 'f', 2, 64)
}

func (s SummaryRow) PercentText() string {
	if s.MaxPoints == 0 {
		return "0%"
	}
	return strconv.FormatFloat(s.Percent, 'f', 1, 64) + "%"
}

func Summaries(ds *Dataset, loc *time.Location) []SummaryRow {
	out := make([]SummaryRow, 0, len(ds.Evaluations))
	for i, eval := range ds.Evaluations {
		answers := ds.Answers[eval.ID]
		scored := make([]scoring.Answer, len(answers))
		for n, a := range answers {
			scored[n] = scoring.Answer{Score: a.Score, NotApplicable: a.NotApplicable}
		}
		out = append(out, SummaryRow{
			Submitter: SubmitterOf(eval.Context, loc),
			Number:    i + 1,
			Summary:   scoring.Summarize(scored),
		})
	}
	return out
}

// FileName is the download name for an export produced at t.
func FileName(t time.Time, ext string) string {
	return "respuestas_" + t.UTC().Format("2006-01-02") + "." + ext
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return empty
	}
	return *s
}
