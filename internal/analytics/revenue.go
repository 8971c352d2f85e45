package analytics

import (
	"time"

	"greennets/backend/internal/domain"
)

// Trend buckets revenue into days consecutive local days from start.
//
// Online revenue counts delivered orders only, line by line. Offline sales
// all count; each sale's flat discount comes off the sum of its matching
// lines once, never per line, and the net is floored at zero.
func Trend(orders []domain.Order, sales []domain.OfflineSale, start time.Time, days int, category string, loc *time.Location) []domain.RevenuePoint {
	online := make(map[string]int64)
	for _, o := range orders {
		if o.Status != domain.OrderDelivered {
			continue
		}
		key := o.CreatedAt.In(loc).Format(dateKeyLayout)
		for _, line := range o.Items {
			if category != "" && line.Category != category {
				continue
			}
			online[key] += line.LineTotalCents
		}
	}

	offline := make(map[string]int64)
	for _, sale := range sales {
		offline[sale.CreatedAt.In(loc).Format(dateKeyLayout)] += offlineNet(sale, category)
	}

	first := startOfDay(start, loc)
	points := make([]domain.RevenuePoint, 0, days)
	for i := 0; i < days; i++ {
		key := first.AddDate(0, 0, i).Format(dateKeyLayout)
		points = append(points, domain.RevenuePoint{Date: key, RevenueCents: online[key] + offline[key]})
	}
	return points
}

// offlineNet is the revenue one offline sale contributes for category.
// A sale with no matching line contributes nothing.
func offlineNet(sale domain.OfflineSale, category string) int64 {
	var subtotal int64
	matched := false
	for _, line := range sale.Items {
		if category != "" && line.Category != category {
			continue
		}
		matched = true
		subtotal += line.LineTotalCents
	}
	if !matched {
		return 0
	}
	return max(subtotal-sale.DiscountCents, 0)
}

// Total sums recorded sale totals over both channels.
func Total(orders []domain.Order, sales []domain.OfflineSale) domain.RevenueTotal {
	var total domain.RevenueTotal
	for _, o := range orders {
		if o.Status == domain.OrderDelivered {
			total.OnlineCents += o.TotalCents
		}
	}
	for _, sale := range sales {
		total.OfflineCents += sale.TotalCents
	}
	total.TotalCents = total.OnlineCents + total.OfflineCents
	return total
}
