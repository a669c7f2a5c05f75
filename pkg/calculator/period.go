package calculator

import (
	"fmt"
	"time"

	"afisha-metrics/pkg/models"
)

// parseMonth("MMYYYY") -> mois calendaire
func parseMonth(mmyyyy string) (models.Month, error) {
	if len(mmyyyy) != 6 {
		return models.Month{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
	}
	for i := 0; i < len(mmyyyy); i++ {
		if mmyyyy[i] < '0' || mmyyyy[i] > '9' {
			return models.Month{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return models.Month{}, fmt.Errorf("mois invalide")
	}
	return models.Month{Year: year, Month: time.Month(month)}, nil
}

// monthsBetweenInclusive énumère les mois de start à end inclus.
func monthsBetweenInclusive(start, end models.Month) []models.Month {
	var out []models.Month
	for cur := start; !end.Before(cur); cur = cur.AddMonths(1) {
		out = append(out, cur)
	}
	return out
}

func formatMonth(m models.Month) string {
	return fmt.Sprintf("%02d/%04d", int(m.Month), m.Year)
}

// monthWindow est la fenêtre optionnelle de cohortes [start, end].
type monthWindow struct {
	start, end       models.Month
	hasStart, hasEnd bool
}

func parseWindow(startMMYYYY, endMMYYYY string) (monthWindow, error) {
	var w monthWindow
	if startMMYYYY != "" {
		m, err := parseMonth(startMMYYYY)
		if err != nil {
			return w, fmt.Errorf("start_month: %w", err)
		}
		w.start, w.hasStart = m, true
	}
	if endMMYYYY != "" {
		m, err := parseMonth(endMMYYYY)
		if err != nil {
			return w, fmt.Errorf("end_month: %w", err)
		}
		w.end, w.hasEnd = m, true
	}
	if w.hasStart && w.hasEnd && w.end.Before(w.start) {
		return w, fmt.Errorf("end_month < start_month")
	}
	return w, nil
}

func (w monthWindow) contains(m models.Month) bool {
	if w.hasStart && m.Before(w.start) {
		return false
	}
	if w.hasEnd && w.end.Before(m) {
		return false
	}
	return true
}

// dayOf tronque t à la journée calendaire (UTC).
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// isoWeek identifie une semaine ISO; l'année fait partie de la clé.
type isoWeek struct {
	year, week int
}

func weekOf(t time.Time) isoWeek {
	y, w := t.UTC().ISOWeek()
	return isoWeek{year: y, week: w}
}

// start renvoie le lundi de la semaine ISO.
func (w isoWeek) start() time.Time {
	// Le 4 janvier appartient toujours à la semaine 1.
	jan4 := time.Date(w.year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(w.week-1)*7)
}

func (w isoWeek) String() string {
	return fmt.Sprintf("%04d-W%02d", w.year, w.week)
}
