package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"afisha-metrics/pkg/logging"
	"afisha-metrics/pkg/models"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedInput marque une ligne rejetée à l'ingestion.
var ErrMalformedInput = errors.New("malformed input")

// RowError décrit une ligne rejetée.
type RowError struct {
	Dataset string
	Row     int
	Reason  string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Dataset, e.Row, e.Reason)
}

func (e *RowError) Unwrap() error { return ErrMalformedInput }

// Open DSN mariadb:// ou mysql:// → format MySQL driver
func Open(dsn string) (*sql.DB, string, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, mysqlDSN, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	// DSN natif: les colonnes DATETIME sont scannées en sql.NullTime, parseTime est obligatoire.
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.ParseTime {
		return dsn, nil
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// DescribeDSN renvoie "user@addr/db" sans le mot de passe, pour les logs.
func DescribeDSN(mysqlDSN string) string {
	cfg, err := mysql.ParseDSN(mysqlDSN)
	if err != nil {
		return "invalid dsn"
	}
	return fmt.Sprintf("%s@%s/%s", cfg.User, cfg.Addr, cfg.DBName)
}

// OpenCSV ouvre une base DuckDB en mémoire qui lit les journaux CSV avec read_csv.
func OpenCSV() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

type queries struct {
	visits, orders, costs string
}

// Loader lit les trois datasets et rejette les lignes malformées.
type Loader struct {
	db      *sql.DB
	queries queries
}

var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// NewMySQLLoader lit les tables visits(uid, device, start_ts, end_ts, source_id),
// orders(uid, buy_ts, revenue) et costs(source_id, dt, costs).
func NewMySQLLoader(db *sql.DB, visitsTable, ordersTable, costsTable string) (*Loader, error) {
	for _, t := range []string{visitsTable, ordersTable, costsTable} {
		if !identRe.MatchString(t) {
			return nil, fmt.Errorf("table invalide: %q", t)
		}
	}
	return &Loader{db: db, queries: queries{
		visits: fmt.Sprintf(`SELECT CAST(uid AS CHAR), device, start_ts, end_ts, CAST(source_id AS CHAR) FROM %s`, visitsTable),
		orders: fmt.Sprintf(`SELECT CAST(uid AS CHAR), buy_ts, revenue FROM %s`, ordersTable),
		costs:  fmt.Sprintf(`SELECT CAST(source_id AS CHAR), dt, costs FROM %s`, costsTable),
	}}, nil
}

// NewCSVLoader lit visits_log_us.csv, orders_log_us.csv et costs_us.csv (en-têtes d'origine)
// depuis dir. Toutes les colonnes sont lues en texte puis converties avec TRY_CAST:
// une valeur illisible devient NULL et la ligne est rejetée.
func NewCSVLoader(db *sql.DB, dir, visitsFile, ordersFile, costsFile string) *Loader {
	src := func(name string) string {
		return fmt.Sprintf("read_csv(%s, header = true, all_varchar = true)", quoteLiteral(filepath.Join(dir, name)))
	}
	return &Loader{db: db, queries: queries{
		visits: `SELECT "Uid", "Device", TRY_CAST("Start Ts" AS TIMESTAMP), TRY_CAST("End Ts" AS TIMESTAMP), "Source Id" FROM ` + src(visitsFile),
		orders: `SELECT "Uid", TRY_CAST("Buy Ts" AS TIMESTAMP), TRY_CAST("Revenue" AS DOUBLE) FROM ` + src(ordersFile),
		costs:  `SELECT "source_id", TRY_CAST("dt" AS TIMESTAMP), TRY_CAST("costs" AS DOUBLE) FROM ` + src(costsFile),
	}}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Load lit les trois datasets en parallèle.
func (l *Loader) Load(ctx context.Context) (models.Datasets, models.LoadStats, error) {
	var (
		ds    models.Datasets
		stats models.LoadStats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ds.Visits, stats.VisitsRead, stats.VisitsRejected, err = l.loadVisits(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Orders, stats.OrdersRead, stats.OrdersRejected, err = l.loadOrders(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Costs, stats.CostsRead, stats.CostsRejected, err = l.loadCosts(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Datasets{}, stats, err
	}

	logging.Debug().
		Int("visits_read", stats.VisitsRead).Int("visits_rejected", stats.VisitsRejected).
		Int("orders_read", stats.OrdersRead).Int("orders_rejected", stats.OrdersRejected).
		Int("costs_read", stats.CostsRead).Int("costs_rejected", stats.CostsRejected).
		Msg("datasets loaded")
	return ds, stats, nil
}

func (l *Loader) loadVisits(ctx context.Context) ([]models.VisitRecord, int, int, error) {
	rows, err := l.db.QueryContext(ctx, l.queries.visits)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []models.VisitRecord
	read, rejected := 0, 0
	for rows.Next() {
		read++
		var r rawVisit
		if err := rows.Scan(&r.uid, &r.device, &r.start, &r.end, &r.source); err != nil {
			return nil, read, rejected, fmt.Errorf("scan visits: %w", err)
		}
		v, err := r.record(read)
		if err != nil {
			rejected++
			logReject(err)
			continue
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, read, rejected, fmt.Errorf("read visits: %w", err)
	}
	return out, read, rejected, nil
}

func (l *Loader) loadOrders(ctx context.Context) ([]models.OrderRecord, int, int, error) {
	rows, err := l.db.QueryContext(ctx, l.queries.orders)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []models.OrderRecord
	read, rejected := 0, 0
	for rows.Next() {
		read++
		var r rawOrder
		if err := rows.Scan(&r.uid, &r.buyTs, &r.revenue); err != nil {
			return nil, read, rejected, fmt.Errorf("scan orders: %w", err)
		}
		o, err := r.record(read)
		if err != nil {
			rejected++
			logReject(err)
			continue
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, read, rejected, fmt.Errorf("read orders: %w", err)
	}
	return out, read, rejected, nil
}

func (l *Loader) loadCosts(ctx context.Context) ([]models.CostRecord, int, int, error) {
	rows, err := l.db.QueryContext(ctx, l.queries.costs)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("query costs: %w", err)
	}
	defer rows.Close()

	var out []models.CostRecord
	read, rejected := 0, 0
	for rows.Next() {
		read++
		var r rawCost
		if err := rows.Scan(&r.source, &r.dt, &r.costs); err != nil {
			return nil, read, rejected, fmt.Errorf("scan costs: %w", err)
		}
		c, err := r.record(read)
		if err != nil {
			rejected++
			logReject(err)
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, read, rejected, fmt.Errorf("read costs: %w", err)
	}
	return out, read, rejected, nil
}

func logReject(err error) {
	var re *RowError
	if errors.As(err, &re) {
		logging.Warn().Str("dataset", re.Dataset).Int("row", re.Row).Str("reason", re.Reason).Msg("row rejected")
	}
}

/*
Lignes brutes telles que scannées, avant validation.
*/

type rawVisit struct {
	uid, device, source sql.NullString
	start, end          sql.NullTime
}

func (r rawVisit) record(row int) (models.VisitRecord, error) {
	reject := func(reason string) (models.VisitRecord, error) {
		return models.VisitRecord{}, &RowError{Dataset: "visits", Row: row, Reason: reason}
	}
	switch {
	case !r.uid.Valid || r.uid.String == "":
		return reject("missing uid")
	case !r.source.Valid || r.source.String == "":
		return reject("missing source_id")
	case !r.start.Valid:
		return reject("unparseable start_ts")
	case !r.end.Valid:
		return reject("unparseable end_ts")
	case r.end.Time.Before(r.start.Time):
		return reject("end_ts before start_ts")
	}
	return models.VisitRecord{
		UserID:    r.uid.String,
		Device:    r.device.String,
		Start:     r.start.Time.UTC(),
		End:       r.end.Time.UTC(),
		ChannelID: r.source.String,
	}, nil
}

type rawOrder struct {
	uid     sql.NullString
	buyTs   sql.NullTime
	revenue sql.NullFloat64
}

func (r rawOrder) record(row int) (models.OrderRecord, error) {
	reject := func(reason string) (models.OrderRecord, error) {
		return models.OrderRecord{}, &RowError{Dataset: "orders", Row: row, Reason: reason}
	}
	switch {
	case !r.uid.Valid || r.uid.String == "":
		return reject("missing uid")
	case !r.buyTs.Valid:
		return reject("unparseable buy_ts")
	case !r.revenue.Valid:
		return reject("unparseable revenue")
	case r.revenue.Float64 < 0:
		return reject("negative revenue")
	}
	return models.OrderRecord{UserID: r.uid.String, PurchaseTime: r.buyTs.Time.UTC(), Revenue: r.revenue.Float64}, nil
}

type rawCost struct {
	source sql.NullString
	dt     sql.NullTime
	costs  sql.NullFloat64
}

func (r rawCost) record(row int) (models.CostRecord, error) {
	reject := func(reason string) (models.CostRecord, error) {
		return models.CostRecord{}, &RowError{Dataset: "costs", Row: row, Reason: reason}
	}
	switch {
	case !r.source.Valid || r.source.String == "":
		return reject("missing source_id")
	case !r.dt.Valid:
		return reject("unparseable dt")
	case !r.costs.Valid:
		return reject("unparseable costs")
	case r.costs.Float64 < 0:
		return reject("negative costs")
	}
	return models.CostRecord{ChannelID: r.source.String, Date: r.dt.Time.UTC(), Spend: r.costs.Float64}, nil
}
