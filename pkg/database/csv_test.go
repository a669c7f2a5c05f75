package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCSVLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "visits_log_us.csv", `Device,End Ts,Source Id,Start Ts,Uid
touch,2017-12-20 17:38:00,4,2017-12-20 17:20:00,16879256277535980062
desktop,2018-02-19 17:21:00,2,2018-02-19 16:53:00,104060357244891740
desktop,2017-07-01 01:54:00,5,2017-07-01 01:54:00,7459035603376831527
touch,not-a-date,9,2018-05-20 10:59:00,16174680259334210214
touch,2018-05-20 10:00:00,9,2018-05-20 10:59:00,16174680259334210214
`)
	writeFile(t, dir, "orders_log_us.csv", `Buy Ts,Revenue,Uid
2017-06-01 00:10:00,17.00,10329302124590727494
2017-06-01 00:25:00,0.55,11627257723692907447
2017-06-01 00:27:00,-3,17903680561304213844
`)
	writeFile(t, dir, "costs_us.csv", `source_id,dt,costs
1,2017-06-01,75.20
2,2017-06-02,62.25
3,2017-06-03,abc
`)

	db, err := OpenCSV()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	l := NewCSVLoader(db, dir, "visits_log_us.csv", "orders_log_us.csv", "costs_us.csv")
	ds, stats, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if stats.VisitsRead != 5 || stats.VisitsRejected != 2 || len(ds.Visits) != 3 {
		t.Fatalf("visits stats = %+v, loaded %d", stats, len(ds.Visits))
	}
	v := ds.Visits[0]
	if v.UserID != "16879256277535980062" || v.Device != "touch" || v.ChannelID != "4" {
		t.Fatalf("first visit = %+v", v)
	}
	if !v.Start.Equal(time.Date(2017, 12, 20, 17, 20, 0, 0, time.UTC)) || v.DurationSeconds() != 18*60 {
		t.Fatalf("first visit times = %v -> %v", v.Start, v.End)
	}
	if ds.Visits[2].DurationSeconds() != 0 {
		t.Fatalf("zero-length session should be kept: %+v", ds.Visits[2])
	}

	if stats.OrdersRejected != 1 || len(ds.Orders) != 2 || ds.Orders[1].Revenue != 0.55 {
		t.Fatalf("orders = %+v (stats %+v)", ds.Orders, stats)
	}
	if stats.CostsRejected != 1 || len(ds.Costs) != 2 || ds.Costs[0].Spend != 75.2 {
		t.Fatalf("costs = %+v (stats %+v)", ds.Costs, stats)
	}
}

func TestCSVLoader_MissingFile(t *testing.T) {
	db, err := OpenCSV()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	l := NewCSVLoader(db, t.TempDir(), "visits.csv", "orders.csv", "costs.csv")
	if _, _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for missing files")
	}
}
