package models

import (
	"database/sql"
	"fmt"
	"time"
)

/*
LOAD → enregistrements normalisés tels que fournis par la couche d'ingestion.
*/

// VisitRecord représente une session sur le site.
type VisitRecord struct {
	UserID    string    `json:"user_id"`
	Device    string    `json:"device"`
	Start     time.Time `json:"start_ts"`
	End       time.Time `json:"end_ts"`
	ChannelID string    `json:"source_id"`
}

// DurationSeconds renvoie la durée de la session en secondes entières (0 = rebond).
func (v VisitRecord) DurationSeconds() int64 {
	return int64(v.End.Sub(v.Start) / time.Second)
}

// OrderRecord représente une commande.
type OrderRecord struct {
	UserID       string    `json:"user_id"`
	PurchaseTime time.Time `json:"buy_ts"`
	Revenue      float64   `json:"revenue"`
}

// CostRecord représente une dépense marketing journalière d'un canal.
type CostRecord struct {
	ChannelID string    `json:"source_id"`
	Date      time.Time `json:"dt"`
	Spend     float64   `json:"costs"`
}

// Datasets regroupe les trois jeux de données immuables d'un calcul.
type Datasets struct {
	Visits []VisitRecord
	Orders []OrderRecord
	Costs  []CostRecord
}

// LoadStats compte les lignes lues et rejetées par dataset.
type LoadStats struct {
	VisitsRead     int `json:"visits_read"`
	VisitsRejected int `json:"visits_rejected"`
	OrdersRead     int `json:"orders_read"`
	OrdersRejected int `json:"orders_rejected"`
	CostsRead      int `json:"costs_read"`
	CostsRejected  int `json:"costs_rejected"`
}

// Month est un mois calendaire (année, mois).
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf tronque t au mois calendaire (UTC).
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

// Start renvoie le 1er jour du mois à 00:00 UTC.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// MonthsSince renvoie le nombre de mois calendaires entiers entre from et m.
func (m Month) MonthsSince(from Month) int {
	return (m.Year-from.Year)*12 + int(m.Month) - int(from.Month)
}

// AddMonths décale le mois de n mois.
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.Start().AddDate(0, n, 0))
}

func (m Month) Before(o Month) bool { return m.MonthsSince(o) < 0 }

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MarshalText encode le mois au format "YYYY-MM".
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

/*
COMPUTE → rapports produits par les quatre moteurs.
*/

// PeriodCount est le nombre d'utilisateurs distincts actifs sur une période.
type PeriodCount struct {
	Period string    `json:"period"`
	Start  time.Time `json:"start"`
	Users  int       `json:"users"`
}

// DailySessions décrit l'activité d'une journée.
type DailySessions struct {
	Date            time.Time `json:"date"`
	Sessions        int       `json:"sessions"`
	Users           int       `json:"users"`
	SessionsPerUser float64   `json:"sessions_per_user"`
}

// HistogramBin est une classe [Lower, Upper) de l'histogramme des durées; la dernière inclut Upper.
type HistogramBin struct {
	LowerSeconds float64 `json:"lower_sec"`
	UpperSeconds float64 `json:"upper_sec"`
	Count        int     `json:"count"`
}

// DurationStats résume la distribution des durées de session.
// La durée "moyenne" retenue est le mode, pas la moyenne arithmétique.
type DurationStats struct {
	Sessions     int            `json:"sessions"`
	ModeSeconds  int64          `json:"mode_sec"`
	ZeroSessions int            `json:"zero_sessions"`
	Histogram    []HistogramBin `json:"histogram"`
}

// DeviceUsage ventile les sessions par type d'appareil.
type DeviceUsage struct {
	Device   string `json:"device"`
	Users    int    `json:"users"`
	Sessions int    `json:"sessions"`
}

// EngagementReport contient DAU/WAU/MAU, sticky factors et statistiques de session.
type EngagementReport struct {
	DAU                float64         `json:"dau"`
	WAU                float64         `json:"wau"`
	MAU                float64         `json:"mau"`
	StickyWeekly       float64         `json:"sticky_wau_pct"`
	StickyMonthly      float64         `json:"sticky_mau_pct"`
	Daily              []PeriodCount   `json:"daily"`
	Weekly             []PeriodCount   `json:"weekly"`
	Monthly            []PeriodCount   `json:"monthly"`
	SessionsPerUser    []DailySessions `json:"sessions_per_user"`
	MeanSessionsPerDay float64         `json:"mean_sessions_per_day"`
	Duration           DurationStats   `json:"duration"`
	Devices            []DeviceUsage   `json:"devices"`
}

// UserCohort associe un client au mois de sa première commande.
type UserCohort struct {
	UserID string `json:"user_id"`
	Cohort Month  `json:"cohort"`
}

// CohortSize est le nombre d'acheteurs distincts d'une cohorte.
type CohortSize struct {
	Cohort Month `json:"cohort"`
	Buyers int   `json:"n_buyers"`
}

// CohortRevenueCell est le revenu d'une cohorte sur un mois d'activité.
type CohortRevenueCell struct {
	Cohort   Month   `json:"cohort"`
	Activity Month   `json:"activity"`
	Revenue  float64 `json:"revenue"`
	Buyers   int     `json:"n_buyers"`
	Age      int     `json:"age"`
	LTV      float64 `json:"ltv"`
}

// LTVRow est une ligne du pivot cohorte × âge; une cellule invalide signifie "pas de donnée".
type LTVRow struct {
	Cohort Month             `json:"cohort"`
	Cells  []sql.NullFloat64 `json:"cells"`
}

// LTVPivot est la matrice LTV par cohorte (lignes) et âge en mois (colonnes).
type LTVPivot struct {
	Ages []int    `json:"ages"`
	Rows []LTVRow `json:"rows"`
}

// CohortReport regroupe l'affectation aux cohortes, les cellules de revenu et le pivot LTV.
type CohortReport struct {
	Assignments    []UserCohort        `json:"assignments"`
	Sizes          []CohortSize        `json:"sizes"`
	Cells          []CohortRevenueCell `json:"cells"`
	Pivot          LTVPivot            `json:"pivot"`
	TotalRevenue   float64             `json:"total_revenue"`
	FirstPurchase  time.Time           `json:"first_purchase"`
	MonthsObserved int                 `json:"months_observed"`
}

// ConversionRow décrit le délai entre première visite et première commande d'un client.
type ConversionRow struct {
	UserID     string        `json:"user_id"`
	FirstVisit time.Time     `json:"first_visit"`
	FirstOrder time.Time     `json:"first_order"`
	Latency    time.Duration `json:"latency"`
	Orders     int           `json:"n_orders"`
}

// ConversionReport ne couvre que les clients ayant au moins une visite et une commande.
type ConversionReport struct {
	Users                []ConversionRow `json:"users"`
	MeanLatency          time.Duration   `json:"mean_latency"`
	MeanOrders           float64         `json:"mean_orders"`
	NegativeLatencyUsers []string        `json:"negative_latency_users"`
}

// ChannelAttributionRow contient CAC, LTV et ROMI d'un canal.
type ChannelAttributionRow struct {
	ChannelID string  `json:"source_id"`
	Spend     float64 `json:"costs"`
	Users     int     `json:"n_users"`
	Revenue   float64 `json:"total_revenue"`
	CAC       float64 `json:"cac"`
	LTV       float64 `json:"ltv"`
	ROMI      float64 `json:"romi"`
}

// ChannelSpend est la dépense cumulée d'un canal.
type ChannelSpend struct {
	ChannelID string  `json:"source_id"`
	Spend     float64 `json:"costs"`
}

// MonthlySpend est la dépense cumulée d'un mois.
type MonthlySpend struct {
	Month Month   `json:"month"`
	Spend float64 `json:"costs"`
}

// AttributionReport est la table d'attribution par canal et le résumé des dépenses.
type AttributionReport struct {
	Rows              []ChannelAttributionRow `json:"rows"`
	TotalSpend        float64                 `json:"total_spend"`
	SpendByChannel    []ChannelSpend          `json:"spend_by_channel"`
	SpendByMonth      []MonthlySpend          `json:"spend_by_month"`
	UnattributedSpend []ChannelSpend          `json:"unattributed_spend"`
	UncostedChannels  []string                `json:"uncosted_channels"`
}

// Reports contient les quatre rapports indépendants et l'erreur propre à chacun.
type Reports struct {
	Engagement     *EngagementReport
	EngagementErr  error
	Cohort         *CohortReport
	CohortErr      error
	Conversion     *ConversionReport
	ConversionErr  error
	Attribution    *AttributionReport
	AttributionErr error
}

/*
CONFIG → paramètres globaux
*/
// Config contient les paramètres passés à calculator.Run.
type Config struct {
	StartMonthInclusive string // "MMYYYY", vide = pas de borne
	EndMonthInclusive   string // "MMYYYY", vide = pas de borne
	HistogramBins       int    // classes de l'histogramme des durées (défaut 100)
	Progress            bool   // barre de progression sur stderr
	Verbose             bool   // logs détaillés par cohorte / canal
}
