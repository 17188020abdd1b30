package calculator

import (
	"fmt"

	"StockHistory/internal/model"

	"github.com/shopspring/decimal"
)

// InitialNotional is the hypothetical investment compounded into PortfolioOf1000.
const InitialNotional = 1000

// DerivationError reports bars that cannot produce well-defined metrics.
type DerivationError struct {
	Index  int
	Date   string
	Reason string
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("derive point %d (%s): %s", e.Index, e.Date, e.Reason)
}

// Derive turns ordered daily bars into price points with per-period return metrics.
// The first point has no predecessor in the batch, so its metrics are absent, and
// PortfolioOf1000 compounds from the first bar of this batch only.
func Derive(bars []model.PriceBar) ([]model.PricePoint, error) {
	points := make([]model.PricePoint, len(bars))
	if len(bars) == 0 {
		return points, nil
	}

	one := decimal.NewFromInt(1)
	portfolio := decimal.NewFromInt(InitialNotional)
	for i, bar := range bars {
		date := bar.Time.Format(model.DateLayout)
		points[i] = model.PricePoint{Date: date, ClosingPrice: bar.Close}
		if i == 0 {
			continue
		}

		prevBar := bars[i-1]
		if !bar.Time.After(prevBar.Time) {
			return nil, &DerivationError{Index: i, Date: date, Reason: "dates not strictly increasing"}
		}
		prev := prevBar.Close
		if prev.IsZero() {
			return nil, &DerivationError{Index: i, Date: date, Reason: "previous close is zero"}
		}

		// returns and holding_period_yield are the same quantity, each computed on its own.
		returns := bar.Close.Div(prev).Sub(one)
		yield := bar.Close.Div(prev).Sub(one)
		hpr := bar.Close.Div(prev)
		portfolio = portfolio.Mul(hpr)

		points[i].Returns = decimal.NewNullDecimal(returns)
		points[i].HoldingPeriodYield = decimal.NewNullDecimal(yield)
		points[i].HoldingPeriodReturn = decimal.NewNullDecimal(hpr)
		points[i].PortfolioOf1000 = decimal.NewNullDecimal(portfolio)
	}
	return points, nil
}

// DeriveSeries wraps Derive for one ticker.
func DeriveSeries(ticker string, bars []model.PriceBar) (*model.TickerSeries, error) {
	points, err := Derive(bars)
	if err != nil {
		return nil, err
	}
	return &model.TickerSeries{Ticker: ticker, Points: points}, nil
}

