package agents

import (
	"time"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

func f64(v float64) *float64 { return &v }

// trendBars builds n daily bars compounding at dailyRet per day.
func trendBars(n int, start, dailyRet float64) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	date := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
		next := price * (1 + dailyRet)
		bars[i] = marketdata.Bar{
			Date:   date,
			Open:   price,
			High:   next * 1.005,
			Low:    price * 0.995,
			Close:  next,
			Volume: 1_000_000,
		}
		price = next
		date = date.AddDate(0, 0, 1)
	}
	return bars
}

// richInfo is a healthy large-cap snapshot.
func richInfo() *marketdata.Info {
	return &marketdata.Info{
		Name:                    "Apple Inc.",
		Sector:                  "Technology",
		Exchange:                "NasdaqGS",
		MarketCap:               f64(2.8e12),
		CurrentPrice:            f64(150),
		ProfitMargins:           f64(0.15),
		GrossMargins:            f64(0.44),
		OperatingMargins:        f64(0.30),
		ReturnOnEquity:          f64(0.20),
		ReturnOnAssets:          f64(0.12),
		TrailingPE:              f64(24),
		PriceToBook:             f64(6),
		PEGRatio:                f64(1.8),
		DebtToEquity:            f64(0.9),
		CurrentRatio:            f64(1.4),
		QuickRatio:              f64(1.1),
		FreeCashflow:            f64(95e9),
		OperatingCashflow:       f64(110e9),
		RevenueGrowth:           f64(0.08),
		EarningsGrowth:          f64(0.11),
		TargetMeanPrice:         f64(180),
		RecommendationMean:      f64(1.9),
		AnalystStrongBuy:        f64(20),
		AnalystBuy:              f64(15),
		AnalystHold:             f64(5),
		AnalystSell:             f64(1),
		AnalystStrongSell:       f64(0),
		SharesOutstanding:       f64(15.5e9),
		HeldPercentInstitutions: f64(0.61),
	}
}

func quarterlyRevenues(values ...float64) *marketdata.StatementTable {
	periods := make([]time.Time, len(values))
	base := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	for i := range periods {
		periods[i] = base.AddDate(0, -3*i, 0)
	}
	return &marketdata.StatementTable{
		Periods: periods,
		Rows: map[string][]float64{
			marketdata.RowTotalRevenue: values,
		},
	}
}
