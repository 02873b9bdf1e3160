package model

// RefreshResult reports the outcome of a reference data refresh across all equities.
// Success is true if at least one equity was refreshed.
type RefreshResult struct {
	Success         bool                 `json:"success"`
	UpdatedEquities []UpdatedEquity      `json:"updatedEquities"`
	Errors          []UpdatedEquityError `json:"errors"`
	TotalUpdated    int                  `json:"totalUpdated"`
	TotalErrors     int                  `json:"totalErrors"`
}

// UpdatedEquity is an equity whose prices or events were written.
type UpdatedEquity struct {
	EquityID      string `json:"equityId"`
	Symbol        string `json:"symbol"`
	PricesChanged int    `json:"pricesChanged"`
	EventsWritten int    `json:"eventsWritten"`
}

// UpdatedEquityError is an equity that failed to refresh.
type UpdatedEquityError struct {
	EquityID string `json:"equityId"`
	Symbol   string `json:"symbol"`
	Error    string `json:"error"`
}

// StatementImportResult reports the outcome of importing a broker statement into an account.
type StatementImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"` // already recorded
	Ignored  int `json:"ignored"` // lines that do not map to a transaction
	Rates    int `json:"rates"`
}

// Add returns the field-wise sum of r and o.
func (r StatementImportResult) Add(o StatementImportResult) StatementImportResult {
	return StatementImportResult{
		Inserted: r.Inserted + o.Inserted,
		Skipped:  r.Skipped + o.Skipped,
		Ignored:  r.Ignored + o.Ignored,
		Rates:    r.Rates + o.Rates,
	}
}
