package calculator

import (
	"sort"
	"time"

	"afisha-metrics/pkg/logging"
	"afisha-metrics/pkg/models"
)

// ComputeConversion mesure, pour chaque client ayant visité et commandé, le délai entre première
// visite et première commande. Un délai négatif est conservé tel quel et signalé.
func ComputeConversion(visits []models.VisitRecord, orders []models.OrderRecord) (*models.ConversionReport, error) {
	firstVisit := make(map[string]time.Time)
	for _, v := range visits {
		if cur, ok := firstVisit[v.UserID]; !ok || v.Start.Before(cur) {
			firstVisit[v.UserID] = v.Start
		}
	}
	firstOrder := make(map[string]time.Time)
	nOrders := make(map[string]int)
	for _, o := range orders {
		if cur, ok := firstOrder[o.UserID]; !ok || o.PurchaseTime.Before(cur) {
			firstOrder[o.UserID] = o.PurchaseTime
		}
		nOrders[o.UserID]++
	}

	// Jointure interne: les visiteurs sans commande sont exclus.
	r := &models.ConversionReport{}
	for uid, fo := range firstOrder {
		fv, ok := firstVisit[uid]
		if !ok {
			continue
		}
		r.Users = append(r.Users, models.ConversionRow{
			UserID:     uid,
			FirstVisit: fv,
			FirstOrder: fo,
			Latency:    fo.Sub(fv),
			Orders:     nOrders[uid],
		})
	}
	sort.Slice(r.Users, func(i, j int) bool { return r.Users[i].UserID < r.Users[j].UserID })

	// Somme en secondes + reste en ns: un time.Duration déborde au-delà de ~292 ans cumulés.
	var sumSeconds, sumNanos int64
	var sumOrders int
	for _, u := range r.Users {
		sumSeconds += int64(u.Latency / time.Second)
		sumNanos += int64(u.Latency % time.Second)
		sumOrders += u.Orders
		if u.Latency < 0 {
			r.NegativeLatencyUsers = append(r.NegativeLatencyUsers, u.UserID)
		}
	}

	n := float64(len(r.Users))
	meanSeconds, err := divide("mean_latency", float64(sumSeconds), n)
	if err != nil {
		return nil, err
	}
	r.MeanLatency = time.Duration(meanSeconds*float64(time.Second) + float64(sumNanos)/n)
	if r.MeanOrders, err = divide("mean_orders", float64(sumOrders), n); err != nil {
		return nil, err
	}

	if len(r.NegativeLatencyUsers) > 0 {
		logging.Warn().
			Int("users", len(r.NegativeLatencyUsers)).
			Str("first", r.NegativeLatencyUsers[0]).
			Msg("orders recorded before first visit")
	}
	return r, nil
}
