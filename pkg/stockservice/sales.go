package stockservice

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SGNL-ai/stockfile/pkg/models"
)

const (
	RangeAll   = "all"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

type SalesQuery struct {
	Range string
}

// DailySales aggregates one UTC calendar day. Sales counts units sold.
type DailySales struct {
	Date    string          `json:"date"`
	Sales   int             `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

type BrandSales struct {
	Brand   string          `json:"brand"`
	Sales   int             `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

type SalesTotals struct {
	Sales        int             `json:"sales"`
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
	AverageSale  decimal.Decimal `json:"average_sale"`
}

type SalesHistory struct {
	Daily   []DailySales `json:"daily"`
	ByBrand []BrandSales `json:"by_brand"`
	Totals  SalesTotals  `json:"totals"`
}

func rangeStart(rng string, now time.Time) (time.Time, bool, error) {
	switch strings.ToLower(rng) {
	case "", RangeAll:
		return time.Time{}, false, nil
	case RangeWeek:
		return now.AddDate(0, 0, -7), true, nil
	case RangeMonth:
		return now.AddDate(0, -1, 0), true, nil
	case RangeYear:
		return now.AddDate(-1, 0, 0), true, nil
	}

	return time.Time{}, false, invalidf("sales", "", "Invalid range: %s", rng)
}

func (s *Service) SalesHistory(ctx context.Context, q SalesQuery) (SalesHistory, error) {
	since, bounded, err := rangeStart(q.Range, s.now().UTC())
	if err != nil {
		return SalesHistory{}, err
	}

	sales, err := s.Repo.ListSales(ctx)
	if err != nil {
		return SalesHistory{}, err
	}

	if bounded {
		sales = filterSales(sales, since)
	}

	return aggregateSales(sales), nil
}

func filterSales(sales []models.Sale, since time.Time) []models.Sale {
	out := make([]models.Sale, 0, len(sales))

	for _, sale := range sales {
		if !sale.SoldAt.Before(since) {
			out = append(out, sale)
		}
	}

	return out
}

func aggregateSales(sales []models.Sale) SalesHistory {
	daily := map[string]*DailySales{}
	brands := map[string]*BrandSales{}

	totals := SalesTotals{Revenue: decimal.Zero, AverageSale: decimal.Zero}

	for _, sale := range sales {
		day := sale.SoldAt.UTC().Format("2006-01-02")

		d, ok := daily[day]
		if !ok {
			d = &DailySales{Date: day, Revenue: decimal.Zero}
			daily[day] = d
		}

		d.Sales += sale.Quantity
		d.Revenue = d.Revenue.Add(sale.Revenue)

		b, ok := brands[sale.Brand]
		if !ok {
			b = &BrandSales{Brand: sale.Brand, Revenue: decimal.Zero}
			brands[sale.Brand] = b
		}

		b.Sales += sale.Quantity
		b.Revenue = b.Revenue.Add(sale.Revenue)

		totals.Sales += sale.Quantity
		totals.Transactions++
		totals.Revenue = totals.Revenue.Add(sale.Revenue)
	}

	if totals.Transactions > 0 {
		totals.AverageSale = totals.Revenue.Div(decimal.NewFromInt(int64(totals.Transactions))).Round(2)
	}

	history := SalesHistory{
		Daily:   make([]DailySales, 0, len(daily)),
		ByBrand: make([]BrandSales, 0, len(brands)),
		Totals:  totals,
	}

	for _, d := range daily {
		history.Daily = append(history.Daily, *d)
	}

	sort.Slice(history.Daily, func(i, j int) bool { return history.Daily[i].Date < history.Daily[j].Date })

	for _, b := range brands {
		history.ByBrand = append(history.ByBrand, *b)
	}

	sort.Slice(history.ByBrand, func(i, j int) bool {
		if c := history.ByBrand[i].Revenue.Cmp(history.ByBrand[j].Revenue); c != 0 {
			return c > 0
		}

		return history.ByBrand[i].Brand < history.ByBrand[j].Brand
	})

	return history
}
