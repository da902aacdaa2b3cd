// Package testutil opens throwaway databases and seeds instrument fixtures.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"evalsurvey/backend/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB returns a migrated in-memory sqlite database private to the test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// Tree is the fixture instrument created by SeedInstrument.
type Tree struct {
	Instrument  *models.Instrument
	Domains     map[string]*models.Domain
	Subsections map[string]*models.Subsection
	Items       map[string]*models.Item
}

// ItemID returns the item id for "domain/code".
func (t *Tree) ItemID(key string) uuid.UUID {
	return t.Items[key].ID
}

// SeedInstrument creates a two-domain instrument:
//
//	D1 (weight 0.6) > 1.1 > items 1.1.1, 1.1.2, 2.1.1
//	D2 (weight 0.4) > 2.1 > items 2.1.1, 2.1.2
//
// Code 2.1.1 exists in both domains. Items are keyed "D1/1.1.1" and so on.
func SeedInstrument(tb testing.TB, ctx context.Context, db *gorm.DB, key string) *Tree {
	tb.Helper()

	inst := &models.Instrument{Key: key, Name: "Instrumento " + key}
	mustCreate(tb, ctx, db, inst)

	tree := &Tree{
		Instrument:  inst,
		Domains:     map[string]*models.Domain{},
		Subsections: map[string]*models.Subsection{},
		Items:       map[string]*models.Item{},
	}
	layout := []struct {
		domain, title string
		weight        float64
		sub           string
		items         []string
	}{
		{"D1", "Gestión", 0.6, "1.1", []string{"1.1.1", "1.1.2", "2.1.1"}},
		{"D2", "Seguridad", 0.4, "2.1", []string{"2.1.1", "2.1.2"}},
	}
	for _, l := range layout {
		d := &models.Domain{InstrumentID: inst.ID, Code: l.domain, Title: l.title, Weight: l.weight}
		mustCreate(tb, ctx, db, d)
		tree.Domains[l.domain] = d

		s := &models.Subsection{DomainID: d.ID, Code: l.sub, Title: "Sub " + l.sub}
		mustCreate(tb, ctx, db, s)
		tree.Subsections[l.domain+"/"+l.sub] = s

		for _, code := range l.items {
			it := &models.Item{SubsectionID: s.ID, Code: code, Title: "Item " + code}
			mustCreate(tb, ctx, db, it)
			tree.Items[l.domain+"/"+code] = it
		}
	}
	return tree
}

// SeedEvaluation stores an evaluation with one answer per score entry.
func SeedEvaluation(tb testing.TB, ctx context.Context, db *gorm.DB, instrumentID uuid.UUID, evalCtx map[string]interface{}, answers map[uuid.UUID]*int) *models.Evaluation {
	tb.Helper()

	eval := &models.Evaluation{InstrumentID: instrumentID, Context: evalCtx}
	mustCreate(tb, ctx, db, eval)
	for itemID, score := range answers {
		a := &models.Answer{EvaluationID: eval.ID, ItemID: itemID, Score: score, NotApplicable: score == nil}
		mustCreate(tb, ctx, db, a)
		eval.Answers = append(eval.Answers, *a)
	}
	return eval
}

func SeedUser(tb testing.TB, ctx context.Context, db *gorm.DB, email, role string) *models.UserProfile {
	tb.Helper()
	u := &models.UserProfile{Email: email, FullName: "Test User", PasswordHash: "x", Role: role}
	mustCreate(tb, ctx, db, u)
	return u
}

func mustCreate(tb testing.TB, ctx context.Context, db *gorm.DB, v interface{}) {
	tb.Helper()
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed %T: %v", v, err)
	}
}

func Int(v int) *int { return &v }

func Str(v string) *string { return &v }
