package scoring

import "math"

// Summary collapses one evaluation's answers into a single evaluation-wide
// ratio, ignoring domain weights.
type Summary struct {
	Total         int     `json:"total"`
	Answered      int     `json:"answered"`
	NotApplicable int     `json:"not_applicable"`
	Points        int     `json:"points"`
	MaxPoints     int     `json:"max_points"`
	Average       float64 `json:"average"`
	Percent       float64 `json:"percent"`
}

// Summarize counts an answer as answered when it is applicable and scored.
// MaxPoints only covers answered items, so unscored applicable answers do not
// lower the percentage.
func Summarize(answers []Answer) Summary {
	var s Summary
	s.Total = len(answers)
	for _, a := range answers {
		if a.NotApplicable {
			s.NotApplicable++
			continue
		}
		if a.Score == nil {
			continue
		}
		s.Answered++
		s.Points += *a.Score
	}
	s.MaxPoints = s.Answered * MaxItemScore
	if s.Answered > 0 {
		s.Average = round(float64(s.Points)/float64(s.Answered), 2)
	}
	if s.MaxPoints > 0 {
		s.Percent = round(float64(s.Points)/float64(s.MaxPoints)*100, 1)
	}
	return s
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+0.5) / p
}
