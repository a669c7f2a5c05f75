package calculator

import (
	"errors"
	"strconv"

	"afisha-metrics/pkg/logging"
	"afisha-metrics/pkg/models"
)

type touchKey struct {
	user, channel string
}

type revenueKey struct {
	user    string
	revenue float64
}

// ComputeAttribution calcule CAC, LTV et ROMI par canal d'acquisition.
//
// Un client est attribué à chaque canal par lequel il a au moins une visite; son revenu peut donc
// compter sur plusieurs canaux. Le nombre d'utilisateurs d'un canal est le nombre de lignes de
// visite, pas de clients distincts. Le revenu est dédoublonné sur (client, canal, montant).
//
// Les lignes sont celles des canaux présents dans les coûts. Un canal dont un ratio est indéfini
// est omis et signalé par une *ChannelError; le rapport partiel est renvoyé avec l'erreur jointe.
func ComputeAttribution(visits []models.VisitRecord, orders []models.OrderRecord, costs []models.CostRecord, verbose bool) (*models.AttributionReport, error) {
	r := &models.AttributionReport{}

	spend := make(map[string]float64)
	spendMonth := make(map[models.Month]float64)
	for _, c := range costs {
		spend[c.ChannelID] += c.Spend
		spendMonth[models.MonthOf(c.Date)] += c.Spend
		r.TotalSpend += c.Spend
	}

	visitRows := make(map[string]int)
	var touches []touchKey
	seenTouch := make(map[touchKey]struct{})
	for _, v := range visits {
		visitRows[v.ChannelID]++
		k := touchKey{user: v.UserID, channel: v.ChannelID}
		if _, ok := seenTouch[k]; !ok {
			seenTouch[k] = struct{}{}
			touches = append(touches, k)
		}
	}

	// Revenu par client, chaque montant distinct compté une fois.
	userRevenue := make(map[string]float64)
	seenRevenue := make(map[revenueKey]struct{})
	for _, o := range orders {
		k := revenueKey{user: o.UserID, revenue: o.Revenue}
		if _, ok := seenRevenue[k]; ok {
			continue
		}
		seenRevenue[k] = struct{}{}
		userRevenue[o.UserID] += o.Revenue
	}

	channelRevenue := make(map[string]float64)
	for _, t := range touches {
		if rev, ok := userRevenue[t.user]; ok {
			channelRevenue[t.channel] += rev
		}
	}

	var errs []error
	for _, ch := range sortedKeys(spend, lessChannel) {
		r.SpendByChannel = append(r.SpendByChannel, models.ChannelSpend{ChannelID: ch, Spend: spend[ch]})

		users := visitRows[ch]
		if users == 0 {
			r.UnattributedSpend = append(r.UnattributedSpend, models.ChannelSpend{ChannelID: ch, Spend: spend[ch]})
			errs = append(errs, &ChannelError{Channel: ch, Metric: "cac", Err: ErrDivisionByZero})
			logging.Warn().Str("source_id", ch).Float64("costs", spend[ch]).Msg("unattributed spend: channel has no visits")
			continue
		}
		row := models.ChannelAttributionRow{
			ChannelID: ch,
			Spend:     spend[ch],
			Users:     users,
			Revenue:   channelRevenue[ch],
			CAC:       spend[ch] / float64(users),
			LTV:       channelRevenue[ch] / float64(users),
		}
		romi, err := divide("romi", row.LTV, row.CAC)
		if err != nil {
			errs = append(errs, &ChannelError{Channel: ch, Metric: "romi", Err: err})
			continue
		}
		row.ROMI = romi
		r.Rows = append(r.Rows, row)
		if verbose {
			logging.Debug().
				Str("source_id", ch).
				Int("n_users", users).
				Float64("cac", row.CAC).
				Float64("ltv", row.LTV).
				Float64("romi", row.ROMI).
				Msg("channel attribution")
		}
	}

	for _, m := range sortedKeys(spendMonth, func(a, b models.Month) bool { return a.Before(b) }) {
		r.SpendByMonth = append(r.SpendByMonth, models.MonthlySpend{Month: m, Spend: spendMonth[m]})
	}
	for _, ch := range sortedKeys(visitRows, lessChannel) {
		if _, ok := spend[ch]; !ok {
			r.UncostedChannels = append(r.UncostedChannels, ch)
		}
	}
	return r, errors.Join(errs...)
}

// lessChannel trie les identifiants numériquement quand c'est possible.
func lessChannel(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
