package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the persisted form of a PricePoint date, e.g. "2024-03-05 00:00:00-0500".
const DateLayout = "2006-01-02 15:04:05-0700"

// DayLayout is the calendar-date form used for fetch bounds and sync state.
const DayLayout = "2006-01-02"

// Field names of a persisted PricePoint document.
const (
	FieldDate                = "date"
	FieldClosingPrice        = "closing_price"
	FieldReturns             = "returns"
	FieldHoldingPeriodYield  = "holding_period_yield"
	FieldHoldingPeriodReturn = "holding_period_return"
	FieldPortfolioOf1000     = "portfolio_of_1000"
)

// PriceBar is one daily observation returned by a provider.
type PriceBar struct {
	Time  time.Time
	Close decimal.Decimal
}

// PricePoint is the derived, persisted unit of a ticker series.
// Metric fields are invalid (absent) for the first point of a batch.
type PricePoint struct {
	Date                string              `json:"date"`
	ClosingPrice        decimal.Decimal     `json:"closing_price"`
	Returns             decimal.NullDecimal `json:"returns"`
	HoldingPeriodYield  decimal.NullDecimal `json:"holding_period_yield"`
	HoldingPeriodReturn decimal.NullDecimal `json:"holding_period_return"`
	PortfolioOf1000     decimal.NullDecimal `json:"portfolio_of_1000"`
}

// Fields returns the document body of p. Absent metrics are omitted so that an update
// of an existing document leaves its previously derived values in place.
func (p PricePoint) Fields() map[string]any {
	f := map[string]any{
		FieldDate:         p.Date,
		FieldClosingPrice: p.ClosingPrice.InexactFloat64(),
	}
	put := func(name string, v decimal.NullDecimal) {
		if v.Valid {
			f[name] = v.Decimal.InexactFloat64()
		}
	}
	put(FieldReturns, p.Returns)
	put(FieldHoldingPeriodYield, p.HoldingPeriodYield)
	put(FieldHoldingPeriodReturn, p.HoldingPeriodReturn)
	put(FieldPortfolioOf1000, p.PortfolioOf1000)
	return f
}

// Day returns the calendar-date prefix of a persisted date string.
func Day(date string) string {
	if len(date) < len(DayLayout) {
		return date
	}
	return date[:len(DayLayout)]
}

// TickerSeries holds the points of one ticker, ordered by date ascending.
// StartDate and EndDate are the requested fetch range (YYYY-MM-DD), not the first and last point.
type TickerSeries struct {
	Ticker    string       `json:"ticker"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Points    []PricePoint `json:"stock_price_data"`
}
