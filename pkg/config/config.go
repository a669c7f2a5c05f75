// Package config charge la configuration en couches: défauts, fichier YAML, puis variables
// d'environnement METRICS_* (priorité la plus haute).
package config

import (
	"fmt"
	"os"
	"strings"

	"afisha-metrics/pkg/models"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	DriverCSV   = "csv"
	DriverMySQL = "mysql"

	// EnvPrefix préfixe les variables d'environnement: METRICS_SOURCE_DSN -> source.dsn
	EnvPrefix = "METRICS_"
	// LegacyDSNEnvVar est l'ancienne variable du DSN, toujours lue.
	LegacyDSNEnvVar = "LTV_MONTHLY_DSN"
	// ConfigPathEnvVar peut désigner le fichier de configuration.
	ConfigPathEnvVar = "METRICS_CONFIG"
)

// DefaultConfigPaths sont cherchés dans l'ordre quand aucun chemin n'est donné.
var DefaultConfigPaths = []string{
	"metrics.yaml",
	"metrics.yml",
	"/etc/afisha-metrics/metrics.yaml",
}

type Config struct {
	Source     SourceConfig     `koanf:"source"`
	Cohort     CohortConfig     `koanf:"cohort"`
	Engagement EngagementConfig `koanf:"engagement"`
	Output     OutputConfig     `koanf:"output"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// SourceConfig désigne les trois datasets: fichiers CSV (driver csv) ou tables (driver mysql).
type SourceConfig struct {
	Driver string `koanf:"driver" validate:"required,oneof=csv mysql"`
	DSN    string `koanf:"dsn" validate:"required_if=Driver mysql"`
	Dir    string `koanf:"dir"`
	Visits string `koanf:"visits"`
	Orders string `koanf:"orders"`
	Costs  string `koanf:"costs"`
}

// CohortConfig borne les lignes du pivot LTV (MMYYYY, vide = pas de borne).
type CohortConfig struct {
	StartMonth string `koanf:"start_month" validate:"omitempty,len=6,numeric"`
	EndMonth   string `koanf:"end_month" validate:"omitempty,len=6,numeric"`
}

type EngagementConfig struct {
	HistogramBins int `koanf:"histogram_bins" validate:"gte=1,lte=10000"`
}

type OutputConfig struct {
	Format   string `koanf:"format" validate:"oneof=text json"`
	Progress bool   `koanf:"progress"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Source:     SourceConfig{Driver: DriverCSV, Dir: "."},
		Engagement: EngagementConfig{HistogramBins: 100},
		Output:     OutputConfig{Format: "text"},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load charge la configuration. path vide: METRICS_CONFIG puis DefaultConfigPaths.
// overrides (clés koanf, ex. "source.dsn") s'appliquent en dernier; ce sont les flags CLI.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	legacy := env.Provider(LegacyDSNEnvVar, ".", func(key string) string {
		if key == LegacyDSNEnvVar {
			return "source.dsn"
		}
		return ""
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("load %s: %w", LegacyDSNEnvVar, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applySourceDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envTransformFunc: METRICS_COHORT_START_MONTH -> cohort.start_month
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applySourceDefaults complète les noms de fichiers ou de tables selon le driver.
func (c *Config) applySourceDefaults() {
	visits, orders, costs := "visits_log_us.csv", "orders_log_us.csv", "costs_us.csv"
	if c.Source.Driver == DriverMySQL {
		visits, orders, costs = "visits", "orders", "costs"
	}
	if c.Source.Visits == "" {
		c.Source.Visits = visits
	}
	if c.Source.Orders == "" {
		c.Source.Orders = orders
	}
	if c.Source.Costs == "" {
		c.Source.Costs = costs
	}
}

var validate = validator.New()

// Validate vérifie les contraintes déclarées dans les tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Calculator renvoie les paramètres de calcul.
func (c *Config) Calculator() models.Config {
	return models.Config{
		StartMonthInclusive: c.Cohort.StartMonth,
		EndMonthInclusive:   c.Cohort.EndMonth,
		HistogramBins:       c.Engagement.HistogramBins,
		Progress:            c.Output.Progress,
		Verbose:             c.Logging.Level == "debug" || c.Logging.Level == "trace",
	}
}
