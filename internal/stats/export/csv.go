package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dropship-hub/dropship-hub/internal/stats"
)

// WriteSummaryCSV serialises the headline numbers of a report.
func WriteSummaryCSV(w io.Writer, report stats.Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Viewpoint", string(report.Viewpoint)},
		{"From", report.From},
		{"To", report.To},
		{"Total Profit", report.TotalProfit},
		{"Total Sales", report.TotalSales},
		{"Transactions", formatInt(report.Counts.Transactions)},
		{"Products", formatInt(report.Counts.Products)},
	}
	optional := []struct {
		label string
		value *int64
	}{
		{"Leads", report.Counts.Leads},
		{"Suppliers", report.Counts.Suppliers},
		{"Sellers", report.Counts.Sellers},
		{"Pickups", report.Counts.Pickups},
	}
	for _, o := range optional {
		if o.value != nil {
			records = append(records, []string{o.label, formatInt(*o.value)})
		}
	}
	records = append(records,
		[]string{"Sub-orders", strconv.Itoa(report.SubOrders.Total)},
		[]string{"Completed", strconv.Itoa(report.SubOrders.Completed)},
		[]string{"Paid", strconv.Itoa(report.SubOrders.Paid)},
		[]string{"Returned", strconv.Itoa(report.SubOrders.Returned)},
		[]string{"Pending", strconv.Itoa(report.SubOrders.Pending)},
	)
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMonthlyCSV emits the trailing monthly series.
func WriteMonthlyCSV(w io.Writer, points []stats.MonthlyPoint) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Month", "Profit", "Sub-orders"}); err != nil {
		return err
	}
	for _, point := range points {
		if err := writer.Write([]string{
			point.Month,
			formatFloat(point.Profit),
			strconv.Itoa(point.SubOrders),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteDailyCSV emits the daily series.
func WriteDailyCSV(w io.Writer, points []stats.DailyPoint) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Date", "Orders", "Profit"}); err != nil {
		return err
	}
	for _, point := range points {
		if err := writer.Write([]string{
			point.Date,
			strconv.Itoa(point.SubOrders),
			formatFloat(point.Profit),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTopProductsCSV prints the product ranking.
func WriteTopProductsCSV(w io.Writer, products []stats.TopProduct) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Rank", "Product ID", "Name", "Quantity"}); err != nil {
		return err
	}
	for i, p := range products {
		if err := writer.Write([]string{strconv.Itoa(i + 1), p.ID, p.Name, strconv.Itoa(p.TotalQuantity)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTopSellersCSV prints the seller ranking.
func WriteTopSellersCSV(w io.Writer, sellers []stats.TopSeller) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Rank", "Seller ID", "Name", "Sub-orders"}); err != nil {
		return err
	}
	for i, s := range sellers {
		if err := writer.Write([]string{strconv.Itoa(i + 1), s.ID, s.Name, strconv.Itoa(s.Count)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
