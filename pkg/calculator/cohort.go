package calculator

import (
	"database/sql"
	"sort"

	"afisha-metrics/pkg/logging"
	"afisha-metrics/pkg/models"

	"github.com/shopspring/decimal"
)

type cellKey struct {
	cohort, activity models.Month
}

// AssignCohorts renvoie pour chaque client le mois de sa première commande, trié par client.
func AssignCohorts(orders []models.OrderRecord) []models.UserCohort {
	first := make(map[string]models.Month)
	for _, o := range orders {
		m := models.MonthOf(o.PurchaseTime)
		if cur, ok := first[o.UserID]; !ok || m.Before(cur) {
			first[o.UserID] = m
		}
	}
	out := make([]models.UserCohort, 0, len(first))
	for uid, m := range first {
		out = append(out, models.UserCohort{UserID: uid, Cohort: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ComputeCohorts construit la matrice de revenu cohorte × mois d'activité et le pivot LTV par âge.
// Les bornes cfg.StartMonthInclusive / cfg.EndMonthInclusive ne filtrent que les lignes du pivot.
func ComputeCohorts(orders []models.OrderRecord, cfg models.Config) (*models.CohortReport, error) {
	window, err := parseWindow(cfg.StartMonthInclusive, cfg.EndMonthInclusive)
	if err != nil {
		return nil, err
	}

	assignments := AssignCohorts(orders)
	cohortOf := make(map[string]models.Month, len(assignments))
	buyers := make(map[models.Month]int)
	for _, a := range assignments {
		cohortOf[a.UserID] = a.Cohort
		buyers[a.Cohort]++
	}

	r := &models.CohortReport{Assignments: assignments}

	// Jointure interne commande -> cohorte du client, puis somme par (cohorte, mois d'achat).
	revenue := make(map[cellKey]float64)
	activeMonths := make(map[models.Month]struct{})
	for _, o := range orders {
		m := models.MonthOf(o.PurchaseTime)
		revenue[cellKey{cohort: cohortOf[o.UserID], activity: m}] += o.Revenue
		activeMonths[m] = struct{}{}
		r.TotalRevenue += o.Revenue
		if r.FirstPurchase.IsZero() || o.PurchaseTime.Before(r.FirstPurchase) {
			r.FirstPurchase = o.PurchaseTime
		}
	}
	r.MonthsObserved = len(activeMonths)

	keys := sortedKeys(revenue, func(a, b cellKey) bool {
		if a.cohort != b.cohort {
			return a.cohort.Before(b.cohort)
		}
		return a.activity.Before(b.activity)
	})
	r.Cells = make([]models.CohortRevenueCell, 0, len(keys))
	for _, k := range keys {
		n := buyers[k.cohort]
		ltv, err := divide("cohort_ltv", revenue[k], float64(n))
		if err != nil {
			return nil, err
		}
		r.Cells = append(r.Cells, models.CohortRevenueCell{
			Cohort:   k.cohort,
			Activity: k.activity,
			Revenue:  revenue[k],
			Buyers:   n,
			Age:      k.activity.MonthsSince(k.cohort),
			LTV:      ltv,
		})
	}

	cohorts := sortedKeys(buyers, func(a, b models.Month) bool { return a.Before(b) })
	r.Sizes = make([]models.CohortSize, 0, len(cohorts))
	for _, c := range cohorts {
		r.Sizes = append(r.Sizes, models.CohortSize{Cohort: c, Buyers: buyers[c]})
	}

	r.Pivot = buildPivot(r.Cells, cohorts, window)
	if cfg.Verbose {
		logPivot(r.Pivot, buyers)
	}
	return r, nil
}

// buildPivot rend la matrice dense cohorte × âge; les combinaisons absentes restent invalides (pas zéro).
func buildPivot(cells []models.CohortRevenueCell, cohorts []models.Month, window monthWindow) models.LTVPivot {
	var p models.LTVPivot
	if len(cohorts) == 0 {
		return p
	}

	byCohort := make(map[models.Month]map[int]float64)
	maxAge := -1
	for _, c := range cells {
		if !window.contains(c.Cohort) {
			continue
		}
		row, ok := byCohort[c.Cohort]
		if !ok {
			row = make(map[int]float64)
			byCohort[c.Cohort] = row
		}
		row[c.Age] = c.LTV
		maxAge = max(maxAge, c.Age)
	}

	p.Ages = make([]int, maxAge+1)
	for i := range p.Ages {
		p.Ages[i] = i
	}
	for _, m := range monthsBetweenInclusive(cohorts[0], cohorts[len(cohorts)-1]) {
		row, ok := byCohort[m]
		if !ok {
			continue
		}
		cells := make([]sql.NullFloat64, len(p.Ages))
		for age, ltv := range row {
			cells[age] = sql.NullFloat64{Float64: round2(ltv), Valid: true}
		}
		p.Rows = append(p.Rows, models.LTVRow{Cohort: m, Cells: cells})
	}
	return p
}

// round2 arrondit à 2 décimales, demi-pair.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).RoundBank(2).InexactFloat64()
}

func logPivot(p models.LTVPivot, buyers map[models.Month]int) {
	for _, row := range p.Rows {
		var total float64
		ages := 0
		for _, c := range row.Cells {
			if c.Valid {
				total += c.Float64
				ages++
			}
		}
		logging.Debug().
			Str("cohort", formatMonth(row.Cohort)).
			Int("buyers", buyers[row.Cohort]).
			Int("ages", ages).
			Float64("cumulative_ltv", total).
			Msg("cohort ltv")
	}
}
