package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"evalsurvey/backend/models"
	"evalsurvey/backend/reconcile"
	"evalsurvey/backend/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByKey(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "centro-sim-qa")
	repo := NewInstrumentRepository(db)

	inst, err := repo.FindByKey(ctx, " centro-sim-qa ")
	require.NoError(t, err)
	assert.Equal(t, tree.Instrument.ID, inst.ID)

	_, err = repo.FindByKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestTreeIsOrderedByCode(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewInstrumentRepository(db)

	domains, err := repo.Tree(ctx, tree.Instrument.ID)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "D1", domains[0].Code)
	assert.Equal(t, "D2", domains[1].Code)
	require.Len(t, domains[0].Subsections, 1)

	var codes []string
	for _, it := range domains[0].Subsections[0].Items {
		codes = append(codes, it.Code)
	}
	assert.Equal(t, []string{"1.1.1", "1.1.2", "2.1.1"}, codes)
}

func TestWeights(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")

	weights, err := NewInstrumentRepository(db).Weights(ctx, tree.Instrument.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"D1": 0.6, "D2": 0.4}, weights)
}

func TestLookupResolvesWithinInstrument(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "a")
	other := testutil.SeedInstrument(t, ctx, db, "b")
	lookup := NewInstrumentRepository(db).Lookup(tree.Instrument.ID)

	byCode, err := lookup.ResolveByCode(ctx, []string{"1.1.1", "2.1.1", "9.9.9"})
	require.NoError(t, err)
	require.Len(t, byCode, 2)

	found := map[string]reconcile.Resolution{}
	for _, r := range byCode {
		found[r.Key] = r
	}
	require.Len(t, found["1.1.1"].Matches, 1)
	assert.Equal(t, tree.ItemID("D1/1.1.1").String(), found["1.1.1"].Matches[0].ID)
	require.Len(t, found["2.1.1"].Matches, 2)
	assert.Equal(t, "D1", found["2.1.1"].Matches[0].DomainCode)
	assert.Equal(t, "D2", found["2.1.1"].Matches[1].DomainCode)

	ids := []string{
		tree.ItemID("D2/2.1.2").String(),
		other.ItemID("D2/2.1.2").String(),
		"not-a-uuid",
	}
	byID, err := lookup.ResolveByID(ctx, ids)
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, ids[0], byID[0].Key)
	assert.Equal(t, "D2", byID[0].Matches[0].DomainCode)
}

func TestSameItemIDInDifferentFormsIsADuplicate(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	lookup := NewInstrumentRepository(db).Lookup(tree.Instrument.ID)
	id := tree.ItemID("D1/1.1.1").String()

	forms := []string{id, strings.ToUpper(id), "{" + id + "}", "urn:uuid:" + id}
	byID, err := lookup.ResolveByID(ctx, forms)
	require.NoError(t, err)
	require.Len(t, byID, len(forms))
	for _, r := range byID {
		assert.Equal(t, id, r.Matches[0].ID)
	}

	res, err := reconcile.Reconcile(ctx, lookup, []reconcile.Entry{
		{ItemID: id, DomainCode: "D1", Score: testutil.Int(0)},
		{ItemID: strings.ToUpper(id), DomainCode: "D1", Score: testutil.Int(2)},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, id, res.Rows[0].ItemID)
	assert.Equal(t, 2, *res.Rows[0].Score)
}

func TestCreateEvaluationWithAnswers(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewEvaluationRepository(db)

	key := "retry-1"
	eval := &models.Evaluation{
		InstrumentID:   tree.Instrument.ID,
		Context:        map[string]interface{}{"centro": "Hospital Norte"},
		IdempotencyKey: &key,
	}
	answers := []models.Answer{
		{ItemID: tree.ItemID("D1/1.1.1"), Score: testutil.Int(2)},
		{ItemID: tree.ItemID("D2/2.1.1"), NotApplicable: true},
	}
	require.NoError(t, repo.Create(ctx, eval, answers))
	assert.NotEqual(t, uuid.Nil, eval.ID)

	found, count, err := repo.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, eval.ID, found.ID)
	assert.EqualValues(t, 2, count)

	_, _, err = repo.FindByIdempotencyKey(ctx, "other")
	assert.True(t, IsNotFound(err))
}

func TestCreateEvaluationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewEvaluationRepository(db)

	item := tree.ItemID("D1/1.1.1")
	eval := &models.Evaluation{InstrumentID: tree.Instrument.ID}
	answers := []models.Answer{
		{ItemID: item, Score: testutil.Int(1)},
		{ItemID: item, Score: testutil.Int(2)},
	}
	err := repo.Create(ctx, eval, answers)
	require.Error(t, err)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "insert answers", pe.Op)

	var evals, rows int64
	require.NoError(t, db.Model(&models.Evaluation{}).Count(&evals).Error)
	require.NoError(t, db.Model(&models.Answer{}).Count(&rows).Error)
	assert.Zero(t, evals)
	assert.Zero(t, rows)
}

func TestListNewestFirstWithCounts(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewEvaluationRepository(db)

	older := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
	})
	newer := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(1),
		tree.ItemID("D1/1.1.2"): nil,
	})
	require.NoError(t, db.Model(older).Update("created_at", time.Now().Add(-time.Hour)).Error)

	page, total, err := repo.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, newer.ID, page[0].ID)
	assert.EqualValues(t, 2, page[0].AnswersCount)
	assert.EqualValues(t, 1, page[1].AnswersCount)

	second, _, err := repo.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, older.ID, second[0].ID)
}

func TestScoringAnswersCarryDomainCodes(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	eval := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
		tree.ItemID("D2/2.1.1"): testutil.Int(0),
	})

	answers, err := NewEvaluationRepository(db).ScoringAnswers(ctx, eval.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "D1", answers[0].DomainCode)
	assert.Equal(t, 2, *answers[0].Score)
	assert.Equal(t, "D2", answers[1].DomainCode)
}

func TestHeaderSkipsAnswers(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	eval := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
	})
	repo := NewEvaluationRepository(db)

	got, err := repo.Header(ctx, eval.ID)
	require.NoError(t, err)
	assert.Equal(t, eval.ID, got.ID)
	assert.Equal(t, tree.Instrument.ID, got.InstrumentID)
	assert.Empty(t, got.Answers)

	_, err = repo.Header(ctx, uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestDeleteEvaluationRemovesAnswers(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewEvaluationRepository(db)
	eval := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
	})

	require.NoError(t, repo.Delete(ctx, eval.ID))
	var count int64
	require.NoError(t, db.Model(&models.Answer{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.True(t, IsNotFound(repo.Delete(ctx, eval.ID)))
}

func TestUpdateAnswerNotes(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewEvaluationRepository(db)
	eval := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
	})
	answerID := eval.Answers[0].ID

	updated, err := repo.UpdateAnswerNotes(ctx, answerID, testutil.Str("acta firmada"), nil)
	require.NoError(t, err)
	require.NotNil(t, updated.Evidence)
	assert.Equal(t, "acta firmada", *updated.Evidence)
	assert.Nil(t, updated.Observations)

	cleared, err := repo.UpdateAnswerNotes(ctx, answerID, testutil.Str(""), nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Evidence)

	_, err = repo.UpdateAnswerNotes(ctx, uuid.New(), nil, nil)
	assert.True(t, IsNotFound(err))
}

func TestDeleteItemsRemovesAnswersFirst(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
		tree.ItemID("D1/1.1.2"): testutil.Int(1),
	})
	repo := NewInstrumentRepository(db)

	n, err := repo.DeleteItems(ctx, []uuid.UUID{tree.ItemID("D1/1.1.1")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var answers int64
	require.NoError(t, db.Model(&models.Answer{}).Count(&answers).Error)
	assert.EqualValues(t, 1, answers)

	n, err = repo.DeleteAllItems(ctx, tree.Instrument.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	require.NoError(t, db.Model(&models.Answer{}).Count(&answers).Error)
	assert.Zero(t, answers)
}

func TestDeleteDomainCascades(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D2/2.1.1"): testutil.Int(2),
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
	})
	repo := NewInstrumentRepository(db)

	require.NoError(t, repo.DeleteDomain(ctx, tree.Domains["D2"].ID))

	var items, answers int64
	require.NoError(t, db.Model(&models.Item{}).Count(&items).Error)
	require.NoError(t, db.Model(&models.Answer{}).Count(&answers).Error)
	assert.EqualValues(t, 3, items)
	assert.EqualValues(t, 1, answers)

	assert.True(t, IsNotFound(repo.DeleteDomain(ctx, tree.Domains["D2"].ID)))
}

func TestDeleteSubsection(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewInstrumentRepository(db)

	require.NoError(t, repo.DeleteSubsection(ctx, tree.Subsections["D1/1.1"].ID))
	var items int64
	require.NoError(t, db.Model(&models.Item{}).Count(&items).Error)
	assert.EqualValues(t, 2, items)
}

func TestSetEvidenceFiles(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewInstrumentRepository(db)

	it, err := repo.SetEvidenceFiles(ctx, tree.ItemID("D1/1.1.1"), []string{"https://files/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://files/a.pdf"}, []string(it.EvidenceFiles))

	var reloaded models.Item
	require.NoError(t, db.First(&reloaded, "id = ?", it.ID).Error)
	assert.Equal(t, []string{"https://files/a.pdf"}, []string(reloaded.EvidenceFiles))
}

func TestExportQueries(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	repo := NewEvaluationRepository(db)
	a := testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
	})
	testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D2/2.1.2"): testutil.Int(1),
	})

	all, err := repo.ExportEvaluations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	answers, err := repo.ExportAnswers(ctx, []uuid.UUID{a.ID})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].Item)
	require.NotNil(t, answers[0].Item.Subsection)
	require.NotNil(t, answers[0].Item.Subsection.Domain)
	assert.Equal(t, "D1", answers[0].Item.Subsection.Domain.Code)
}

func TestAnalytics(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tree := testutil.SeedInstrument(t, ctx, db, "k")
	other := testutil.SeedInstrument(t, ctx, db, "otro")
	testutil.SeedEvaluation(t, ctx, db, tree.Instrument.ID, nil, map[uuid.UUID]*int{
		tree.ItemID("D1/1.1.1"): testutil.Int(2),
		tree.ItemID("D1/2.1.1"): nil,
		tree.ItemID("D2/2.1.1"): testutil.Int(1),
	})
	testutil.SeedEvaluation(t, ctx, db, other.Instrument.ID, nil, map[uuid.UUID]*int{
		other.ItemID("D1/1.1.1"): testutil.Int(0),
	})
	repo := NewAnalyticsRepository(db)
	now := time.Now()
	period := Period{From: now.Add(-time.Hour), To: now.Add(time.Hour)}

	totals, err := repo.Totals(ctx, tree.Instrument.ID, period)
	require.NoError(t, err)
	assert.EqualValues(t, 1, totals.Evaluations)
	assert.EqualValues(t, 3, totals.Answers)
	assert.EqualValues(t, 1, totals.NotApplicable)
	assert.EqualValues(t, 5, totals.Items)

	domains, err := repo.DomainAverages(ctx, tree.Instrument.ID, period)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "D1", domains[0].Code)
	assert.EqualValues(t, 1, domains[0].Answers)
	assert.InDelta(t, 1.0, domains[0].Raw, 1e-9)
	assert.InDelta(t, 0.5, domains[1].Raw, 1e-9)
	assert.InDelta(t, 0.4, domains[1].Weight, 1e-9)

	daily, err := repo.Daily(ctx, tree.Instrument.ID, period, time.UTC)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 1, daily[0].Evaluations)

	past := Period{From: now.AddDate(-1, 0, 0), To: now.AddDate(0, 0, -1)}
	totals, err = repo.Totals(ctx, tree.Instrument.ID, past)
	require.NoError(t, err)
	assert.Zero(t, totals.Evaluations)
	assert.Zero(t, totals.Answers)
}
