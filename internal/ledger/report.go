package ledger

// BuildReport aggregates entries into the financial report. It is a pure
// function over the supplied entries so correctness never depends on a
// maintained running total: the same numbers fall out of a full re-scan.
//
// Completed entries add to their kind's bucket; reversal compensators
// (status reversed) subtract from the bucket of the entry they reverse.
// A reversal whose original falls outside the queried range can drive a
// bucket negative, so totals clamp at zero.
func BuildReport(entries []*Entry) *Report {
	report := &Report{
		ExpensesByCategory: make(map[Category]int64),
	}

	for _, e := range entries {
		var sign int64
		switch e.Status {
		case StatusCompleted:
			sign = 1
		case StatusReversed:
			sign = -1
		default:
			continue
		}

		report.TransactionCount++

		switch e.Kind {
		case KindIncome:
			report.TotalIncome += sign * e.Amount
		case KindExpense:
			report.TotalExpenses += sign * e.Amount
			category := e.Category.Normalize()
			report.ExpensesByCategory[category] += sign * e.Amount
		}
	}

	if report.TotalIncome < 0 {
		report.TotalIncome = 0
	}
	if report.TotalExpenses < 0 {
		report.TotalExpenses = 0
	}
	for category, amount := range report.ExpensesByCategory {
		if amount <= 0 {
			delete(report.ExpensesByCategory, category)
		}
	}

	report.Profit = report.TotalIncome - report.TotalExpenses
	return report
}
