// Package reconcile turns a submitted batch of raw answers into one validated
// row per item, resolving legacy item codes to durable item ids.
package reconcile

import (
	"context"
	"fmt"
	"strings"
)

// Entry is one raw answer as submitted by a client. At least one of ItemID
// and ItemCode must be set.
type Entry struct {
	ItemID        string
	ItemCode      string
	DomainCode    string
	Score         *int
	NotApplicable bool
	Evidence      *string
	Observations  *string
}

// ItemRef is the canonical identity of a questionnaire item.
type ItemRef struct {
	ID         string
	Code       string
	DomainCode string
}

// Resolution is the lookup outcome for one key: not found when Matches is
// empty, resolved when it holds exactly one item.
type Resolution struct {
	Key     string
	Matches []ItemRef
}

func (r Resolution) Found() bool { return len(r.Matches) > 0 }

// Lookup resolves item keys in bulk. Keys absent from the returned slice are
// treated as not found. An error means the lookup itself failed.
type Lookup interface {
	ResolveByID(ctx context.Context, ids []string) ([]Resolution, error)
	ResolveByCode(ctx context.Context, codes []string) ([]Resolution, error)
}

// Row is a reconciled answer ready to be attached to an evaluation.
type Row struct {
	ItemID        string
	DomainCode    string
	Score         *int
	NotApplicable bool
	Evidence      *string
	Observations  *string
}

// Result holds the reconciled rows and how many duplicate entries were
// dropped on the way.
type Result struct {
	Rows       []Row
	Duplicates int
}

const maxScore = 2

// Reconcile validates and resolves entries. The whole batch fails on the
// first class of problem found; missing codes and ids are reported together.
// When several entries address the same item the last one wins and keeps
// the position of the first.
func Reconcile(ctx context.Context, lookup Lookup, entries []Entry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, ErrEmptyBatch
	}
	entries = append([]Entry(nil), entries...)

	var ids, codes []string
	seenID := make(map[string]bool)
	seenCode := make(map[string]bool)
	for i := range entries {
		e := &entries[i]
		e.ItemID = strings.TrimSpace(e.ItemID)
		e.ItemCode = strings.TrimSpace(e.ItemCode)
		if e.ItemID == "" && e.ItemCode == "" {
			return Result{}, &MalformedEntryError{Index: i, Reason: "neither itemId nor itemCode given"}
		}
		if e.Score != nil && (*e.Score < 0 || *e.Score > maxScore) {
			return Result{}, &MalformedEntryError{Index: i, Reason: fmt.Sprintf("score %d out of range", *e.Score)}
		}
		switch {
		case e.ItemID != "":
			if !seenID[e.ItemID] {
				seenID[e.ItemID] = true
				ids = append(ids, e.ItemID)
			}
		default:
			if !seenCode[e.ItemCode] {
				seenCode[e.ItemCode] = true
				codes = append(codes, e.ItemCode)
			}
		}
	}

	byID, err := resolve(ctx, ids, lookup.ResolveByID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve item ids: %w", err)
	}
	byCode, err := resolve(ctx, codes, lookup.ResolveByCode)
	if err != nil {
		return Result{}, fmt.Errorf("resolve item codes: %w", err)
	}

	var missingIDs, missingCodes, ambiguous []string
	for _, id := range ids {
		if !byID[id].Found() {
			missingIDs = append(missingIDs, id)
		}
	}
	for _, code := range codes {
		if !byCode[code].Found() {
			missingCodes = append(missingCodes, code)
		}
	}
	if len(missingIDs) > 0 {
		return Result{}, &UnknownItemIDError{IDs: missingIDs}
	}
	if len(missingCodes) > 0 {
		return Result{}, &UnknownItemCodeError{Codes: missingCodes}
	}

	refs := make([]ItemRef, len(entries))
	flagged := make(map[string]bool)
	for i, e := range entries {
		if e.ItemID != "" {
			refs[i] = byID[e.ItemID].Matches[0]
			continue
		}
		ref, ok := pick(byCode[e.ItemCode].Matches, e.DomainCode)
		if !ok {
			if !flagged[e.ItemCode] {
				flagged[e.ItemCode] = true
				ambiguous = append(ambiguous, e.ItemCode)
			}
			continue
		}
		refs[i] = ref
	}
	if len(ambiguous) > 0 {
		return Result{}, &AmbiguousItemCodeError{Codes: ambiguous}
	}

	res := Result{Rows: make([]Row, 0, len(entries))}
	pos := make(map[string]int, len(entries))
	for i, e := range entries {
		row := Row{
			ItemID:        refs[i].ID,
			DomainCode:    refs[i].DomainCode,
			Score:         e.Score,
			NotApplicable: e.NotApplicable,
			Evidence:      e.Evidence,
			Observations:  e.Observations,
		}
		if row.NotApplicable {
			row.Score = nil
		}
		if at, dup := pos[row.ItemID]; dup {
			res.Rows[at] = row
			res.Duplicates++
			continue
		}
		pos[row.ItemID] = len(res.Rows)
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func resolve(ctx context.Context, keys []string, fn func(context.Context, []string) ([]Resolution, error)) (map[string]Resolution, error) {
	out := make(map[string]Resolution, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	found, err := fn(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, r := range found {
		out[r.Key] = r
	}
	return out, nil
}

// pick narrows code matches to a single item, using the entry's domain code
// only when the code alone is not unique.
func pick(matches []ItemRef, domainCode string) (ItemRef, bool) {
	if len(matches) == 1 {
		return matches[0], true
	}
	var hit []ItemRef
	for _, m := range matches {
		if m.DomainCode == strings.TrimSpace(domainCode) {
			hit = append(hit, m)
		}
	}
	if len(hit) != 1 {
		return ItemRef{}, false
	}
	return hit[0], true
}
