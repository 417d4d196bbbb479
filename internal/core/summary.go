package core

import "sort"

// ChargeRunResult aggregates the outcome of one scheduler run.
type ChargeRunResult struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (r ChargeRunResult) Total() int {
	return r.Succeeded + r.Skipped + r.Failed
}

// LabelAmount is the total charged under one ledger label.
type LabelAmount struct {
	Label  string `json:"label"`
	Amount Money  `json:"amount"`
	Count  int    `json:"count"`
}

// MonthSummary holds a month's ledger totals for one owner.
type MonthSummary struct {
	Year    int           `json:"year"`
	Month   int           `json:"month"`
	Total   Money         `json:"total"`
	ByLabel []LabelAmount `json:"by_label"`
}

// Summarize reduces entries into a MonthSummary. ByLabel is ordered by amount,
// largest first, then by label.
func Summarize(year, month int, entries []LedgerEntry) MonthSummary {
	s := MonthSummary{Year: year, Month: month, ByLabel: []LabelAmount{}}
	idx := map[string]int{}
	for _, e := range entries {
		s.Total.Cents += e.Amount.Cents
		i, ok := idx[e.Label]
		if !ok {
			i = len(s.ByLabel)
			idx[e.Label] = i
			s.ByLabel = append(s.ByLabel, LabelAmount{Label: e.Label})
		}
		s.ByLabel[i].Amount.Cents += e.Amount.Cents
		s.ByLabel[i].Count++
	}
	sort.SliceStable(s.ByLabel, func(a, b int) bool {
		if s.ByLabel[a].Amount.Cents != s.ByLabel[b].Amount.Cents {
			return s.ByLabel[a].Amount.Cents > s.ByLabel[b].Amount.Cents
		}
		return s.ByLabel[a].Label < s.ByLabel[b].Label
	})
	return s
}
