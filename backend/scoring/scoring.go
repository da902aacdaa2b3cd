// Package scoring aggregates raw 0..2 item scores into per-domain compliance
// ratios and an overall weighted percentage.
package scoring

import (
	"math"
	"sort"
)

// MaxItemScore is the best score a single answer can earn.
const MaxItemScore = 2

// Answer is one resolved answer as seen by the scoring engine.
type Answer struct {
	DomainCode    string
	Score         *int
	NotApplicable bool
}

type DomainScore struct {
	Code     string  `json:"code"`
	Raw      float64 `json:"raw"`
	Weighted float64 `json:"weighted"`
}

type Report struct {
	Domains      []DomainScore `json:"domains"`
	TotalPercent int           `json:"total_percent"`
}

type tally struct {
	sum int
	max int
}

// Compute builds the compliance report for answers using the domain weights.
// Not-applicable answers are ignored entirely, domains without any included
// answer are left out of the report and a domain missing from weights counts
// with weight 0. The total is rounded once, after summing the weighted scores.
func Compute(answers []Answer, weights map[string]float64) Report {
	agg := make(map[string]*tally)
	order := make([]string, 0)
	for _, a := range answers {
		if a.NotApplicable {
			continue
		}
		t, ok := agg[a.DomainCode]
		if !ok {
			t = &tally{}
			agg[a.DomainCode] = t
			order = append(order, a.DomainCode)
		}
		if a.Score != nil {
			t.sum += *a.Score
		}
		t.max += MaxItemScore
	}

	report := Report{Domains: make([]DomainScore, 0, len(order))}
	var total float64
	for _, code := range order {
		t := agg[code]
		raw := float64(t.sum) / float64(t.max)
		weighted := raw * weights[code]
		total += weighted
		report.Domains = append(report.Domains, DomainScore{Code: code, Raw: raw, Weighted: weighted})
	}
	report.TotalPercent = roundHalfUp(total * 100)
	return report
}

// SortByCode orders the domain entries by code in place. Compute keeps
// first-seen order.
func (r Report) SortByCode() Report {
	sort.SliceStable(r.Domains, func(i, j int) bool { return r.Domains[i].Code < r.Domains[j].Code })
	return r
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
