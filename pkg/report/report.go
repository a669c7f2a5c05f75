// Package report met en forme les quatre rapports pour la console (texte) ou en JSON.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"afisha-metrics/pkg/models"

	"github.com/goccy/go-json"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Write écrit les rapports dans w au format demandé.
func Write(w io.Writer, r models.Reports, stats models.LoadStats, format string) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r, stats)
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("format inconnu: %q", format)
	}
}

/*
TEXTE → une section par rapport, colonnes séparées par " ; "
*/

type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func writeText(w io.Writer, r models.Reports) error {
	t := &textWriter{w: w}

	t.printf("== engagement\n")
	if r.EngagementErr != nil {
		t.printf("error ; %v\n", r.EngagementErr)
	} else if e := r.Engagement; e != nil {
		t.printf("DAU ; %d\nWAU ; %d\nMAU ; %d\n", int(e.DAU), int(e.WAU), int(e.MAU))
		t.printf("sticky_wau_pct ; %.2f\nsticky_mau_pct ; %.2f\n", e.StickyWeekly, e.StickyMonthly)
		t.printf("mean_sessions_per_day ; %.2f\n", e.MeanSessionsPerDay)
		t.printf("mode_session_sec ; %d\nzero_sessions ; %d\n", e.Duration.ModeSeconds, e.Duration.ZeroSessions)
		for _, d := range e.Devices {
			t.printf("device=%s ; users=%d ; sessions=%d\n", d.Device, d.Users, d.Sessions)
		}
	}

	t.printf("\n== cohort ltv\n")
	if r.CohortErr != nil {
		t.printf("error ; %v\n", r.CohortErr)
	} else if c := r.Cohort; c != nil {
		t.printf("total_revenue ; %.2f\nfirst_purchase ; %s\nmonths ; %d\n",
			c.TotalRevenue, c.FirstPurchase.Format(time.DateTime), c.MonthsObserved)
		header := []string{"cohort", "n_buyers"}
		for _, a := range c.Pivot.Ages {
			header = append(header, fmt.Sprint(a))
		}
		t.printf("%s\n", strings.Join(header, " ; "))
		buyers := make(map[models.Month]int, len(c.Sizes))
		for _, s := range c.Sizes {
			buyers[s.Cohort] = s.Buyers
		}
		for _, row := range c.Pivot.Rows {
			cols := []string{fmt.Sprintf("%02d/%04d", int(row.Cohort.Month), row.Cohort.Year), fmt.Sprint(buyers[row.Cohort])}
			for _, cell := range row.Cells {
				if cell.Valid {
					cols = append(cols, fmt.Sprintf("%.2f", cell.Float64))
				} else {
					cols = append(cols, "")
				}
			}
			t.printf("%s\n", strings.Join(cols, " ; "))
		}
	}

	t.printf("\n== conversion\n")
	if r.ConversionErr != nil {
		t.printf("error ; %v\n", r.ConversionErr)
	} else if c := r.Conversion; c != nil {
		t.printf("users ; %d\nmean_latency ; %s\nmean_orders ; %.2f\nnegative_latency_users ; %d\n",
			len(c.Users), c.MeanLatency, c.MeanOrders, len(c.NegativeLatencyUsers))
	}

	t.printf("\n== attribution\n")
	if a := r.Attribution; a != nil {
		t.printf("total_spend ; %.2f\n", a.TotalSpend)
		t.printf("source_id ; costs ; n_users ; total_revenue ; cac ; ltv ; romi\n")
		for _, row := range a.Rows {
			t.printf("%s ; %.2f ; %d ; %.2f ; %.4f ; %.4f ; %.4f\n",
				row.ChannelID, row.Spend, row.Users, row.Revenue, row.CAC, row.LTV, row.ROMI)
		}
		for _, u := range a.UnattributedSpend {
			t.printf("unattributed_spend ; source_id=%s ; costs=%.2f\n", u.ChannelID, u.Spend)
		}
		if len(a.UncostedChannels) > 0 {
			t.printf("uncosted_channels ; %s\n", strings.Join(a.UncostedChannels, ","))
		}
	}
	if r.AttributionErr != nil {
		t.printf("error ; %v\n", r.AttributionErr)
	}
	return t.err
}

/*
JSON → les cellules absentes du pivot deviennent null
*/

type jsonSection[T any] struct {
	Report T      `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

type jsonPivotRow struct {
	Cohort models.Month `json:"cohort"`
	Cells  []*float64   `json:"ltv"`
}

type jsonPivot struct {
	Ages []int          `json:"ages"`
	Rows []jsonPivotRow `json:"rows"`
}

type jsonCohort struct {
	Assignments    []models.UserCohort        `json:"assignments"`
	Sizes          []models.CohortSize        `json:"sizes"`
	Cells          []models.CohortRevenueCell `json:"cells"`
	Pivot          jsonPivot                  `json:"pivot"`
	TotalRevenue   float64                    `json:"total_revenue"`
	FirstPurchase  time.Time                  `json:"first_purchase"`
	MonthsObserved int                        `json:"months_observed"`
}

type jsonDocument struct {
	Input       models.LoadStats                       `json:"input"`
	Engagement  jsonSection[*models.EngagementReport]  `json:"engagement"`
	Cohort      jsonSection[*jsonCohort]               `json:"cohort"`
	Conversion  jsonSection[*models.ConversionReport]  `json:"conversion"`
	Attribution jsonSection[*models.AttributionReport] `json:"attribution"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeJSON(w io.Writer, r models.Reports, stats models.LoadStats) error {
	doc := jsonDocument{Input: stats}
	doc.Engagement = jsonSection[*models.EngagementReport]{Report: r.Engagement, Error: errString(r.EngagementErr)}
	doc.Conversion = jsonSection[*models.ConversionReport]{Report: r.Conversion, Error: errString(r.ConversionErr)}
	doc.Attribution = jsonSection[*models.AttributionReport]{Report: r.Attribution, Error: errString(r.AttributionErr)}
	doc.Cohort.Error = errString(r.CohortErr)
	if r.Cohort != nil {
		c := r.Cohort
		jc := &jsonCohort{
			Assignments:    c.Assignments,
			Sizes:          c.Sizes,
			Cells:          c.Cells,
			Pivot:          jsonPivot{Ages: c.Pivot.Ages},
			TotalRevenue:   c.TotalRevenue,
			FirstPurchase:  c.FirstPurchase,
			MonthsObserved: c.MonthsObserved,
		}
		for _, row := range c.Pivot.Rows {
			cells := make([]*float64, len(row.Cells))
			for i, cell := range row.Cells {
				if cell.Valid {
					v := cell.Float64
					cells[i] = &v
				}
			}
			jc.Pivot.Rows = append(jc.Pivot.Rows, jsonPivotRow{Cohort: row.Cohort, Cells: cells})
		}
		doc.Cohort.Report = jc
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
