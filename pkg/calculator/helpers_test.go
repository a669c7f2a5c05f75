package calculator

import (
	"math"
	"testing"
	"time"

	"afisha-metrics/pkg/models"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.DateTime, s)
	if err != nil {
		t.Fatalf("bad fixture time %q: %v", s, err)
	}
	return v
}

func visit(t *testing.T, uid, device, start string, seconds int, channel string) models.VisitRecord {
	t.Helper()
	st := ts(t, start)
	return models.VisitRecord{
		UserID:    uid,
		Device:    device,
		Start:     st,
		End:       st.Add(time.Duration(seconds) * time.Second),
		ChannelID: channel,
	}
}

func order(t *testing.T, uid, at string, revenue float64) models.OrderRecord {
	t.Helper()
	return models.OrderRecord{UserID: uid, PurchaseTime: ts(t, at), Revenue: revenue}
}

func cost(t *testing.T, channel, day string, spend float64) models.CostRecord {
	t.Helper()
	return models.CostRecord{ChannelID: channel, Date: ts(t, day+" 00:00:00"), Spend: spend}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func month(y int, m time.Month) models.Month {
	return models.Month{Year: y, Month: m}
}
