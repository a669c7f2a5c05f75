package calculator

import (
	"math"
	"sort"
	"time"

	"afisha-metrics/pkg/models"
)

const defaultHistogramBins = 100

// userSets accumule les utilisateurs distincts par clé de période.
type userSets[K comparable] map[K]map[string]struct{}

func (s userSets[K]) add(k K, user string) {
	users, ok := s[k]
	if !ok {
		users = make(map[string]struct{})
		s[k] = users
	}
	users[user] = struct{}{}
}

// ComputeEngagement calcule DAU/WAU/MAU, les sticky factors et les statistiques de session.
func ComputeEngagement(visits []models.VisitRecord, bins int) (*models.EngagementReport, error) {
	if bins <= 0 {
		bins = defaultHistogramBins
	}

	daily := userSets[time.Time]{}
	weekly := userSets[isoWeek]{}
	monthly := userSets[models.Month]{}
	sessions := map[time.Time]int{}
	for _, v := range visits {
		day := dayOf(v.Start)
		daily.add(day, v.UserID)
		weekly.add(weekOf(v.Start), v.UserID)
		monthly.add(models.MonthOf(v.Start), v.UserID)
		sessions[day]++
	}

	days := sortedKeys(daily, func(a, b time.Time) bool { return a.Before(b) })
	weeks := sortedKeys(weekly, func(a, b isoWeek) bool {
		return a.year < b.year || (a.year == b.year && a.week < b.week)
	})
	months := sortedKeys(monthly, func(a, b models.Month) bool { return a.Before(b) })

	r := &models.EngagementReport{
		Daily:           make([]models.PeriodCount, 0, len(days)),
		Weekly:          make([]models.PeriodCount, 0, len(weeks)),
		Monthly:         make([]models.PeriodCount, 0, len(months)),
		SessionsPerUser: make([]models.DailySessions, 0, len(days)),
	}

	var sumDaily, sumSessions int
	for _, d := range days {
		n := len(daily[d])
		sumDaily += n
		sumSessions += sessions[d]
		r.Daily = append(r.Daily, models.PeriodCount{Period: d.Format(time.DateOnly), Start: d, Users: n})
		r.SessionsPerUser = append(r.SessionsPerUser, models.DailySessions{
			Date:            d,
			Sessions:        sessions[d],
			Users:           n,
			SessionsPerUser: float64(sessions[d]) / float64(n),
		})
	}
	var sumWeekly int
	for _, w := range weeks {
		n := len(weekly[w])
		sumWeekly += n
		r.Weekly = append(r.Weekly, models.PeriodCount{Period: w.String(), Start: w.start(), Users: n})
	}
	var sumMonthly int
	for _, m := range months {
		n := len(monthly[m])
		sumMonthly += n
		r.Monthly = append(r.Monthly, models.PeriodCount{Period: m.String(), Start: m.Start(), Users: n})
	}

	var err error
	if r.DAU, err = divide("dau", float64(sumDaily), float64(len(days))); err != nil {
		return nil, err
	}
	if r.WAU, err = divide("wau", float64(sumWeekly), float64(len(weeks))); err != nil {
		return nil, err
	}
	if r.MAU, err = divide("mau", float64(sumMonthly), float64(len(months))); err != nil {
		return nil, err
	}
	if r.StickyWeekly, err = divide("sticky_wau", r.DAU, r.WAU); err != nil {
		return nil, err
	}
	r.StickyWeekly *= 100
	if r.StickyMonthly, err = divide("sticky_mau", r.DAU, r.MAU); err != nil {
		return nil, err
	}
	r.StickyMonthly *= 100
	if r.MeanSessionsPerDay, err = divide("sessions_per_day", float64(sumSessions), float64(len(days))); err != nil {
		return nil, err
	}

	r.Duration = durationStats(visits, bins)
	r.Devices = deviceUsage(visits)
	return r, nil
}

// durationStats construit l'histogramme des durées et en extrait le mode.
func durationStats(visits []models.VisitRecord, bins int) models.DurationStats {
	st := models.DurationStats{Sessions: len(visits)}
	if len(visits) == 0 {
		return st
	}

	freq := map[int64]int{}
	minSec, maxSec := int64(math.MaxInt64), int64(math.MinInt64)
	for _, v := range visits {
		d := v.DurationSeconds()
		freq[d]++
		if d == 0 {
			st.ZeroSessions++
		}
		minSec = min(minSec, d)
		maxSec = max(maxSec, d)
	}

	// Mode: durée la plus fréquente, la plus courte en cas d'égalité.
	best := -1
	for d, n := range freq {
		if n > best || (n == best && d < st.ModeSeconds) {
			best, st.ModeSeconds = n, d
		}
	}

	if minSec == maxSec {
		st.Histogram = []models.HistogramBin{{
			LowerSeconds: float64(minSec),
			UpperSeconds: float64(maxSec),
			Count:        len(visits),
		}}
		return st
	}
	width := float64(maxSec-minSec) / float64(bins)
	st.Histogram = make([]models.HistogramBin, bins)
	for i := range st.Histogram {
		st.Histogram[i].LowerSeconds = float64(minSec) + float64(i)*width
		st.Histogram[i].UpperSeconds = float64(minSec) + float64(i+1)*width
	}
	st.Histogram[bins-1].UpperSeconds = float64(maxSec)
	for d, n := range freq {
		i := int(float64(d-minSec) / width)
		if i >= bins {
			i = bins - 1
		}
		st.Histogram[i].Count += n
	}
	return st
}

func deviceUsage(visits []models.VisitRecord) []models.DeviceUsage {
	users := userSets[string]{}
	sessions := map[string]int{}
	for _, v := range visits {
		users.add(v.Device, v.UserID)
		sessions[v.Device]++
	}
	devices := sortedKeys(users, func(a, b string) bool { return a < b })
	out := make([]models.DeviceUsage, 0, len(devices))
	for _, d := range devices {
		out = append(out, models.DeviceUsage{Device: d, Users: len(users[d]), Sessions: sessions[d]})
	}
	return out
}

func sortedKeys[K comparable, V any](m map[K]V, less func(a, b K) bool) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
