package main

import (
	"testing"

	"afisha-metrics/pkg/config"
)

func TestFlagOverrides_DirSelectsCSV(t *testing.T) {
	o := flagOverrides(cliFlags{dir: "/data/afisha"})
	if o["source.driver"] != config.DriverCSV || o["source.dir"] != "/data/afisha" {
		t.Fatalf("overrides = %v", o)
	}
}

func TestFlagOverrides_DSNSelectsMySQL(t *testing.T) {
	o := flagOverrides(cliFlags{dsn: "mysql://u:p@h:3306/db"})
	if o["source.driver"] != config.DriverMySQL || o["source.dsn"] != "mysql://u:p@h:3306/db" {
		t.Fatalf("overrides = %v", o)
	}
}

func TestFlagOverrides_Empty(t *testing.T) {
	if o := flagOverrides(cliFlags{}); len(o) != 0 {
		t.Fatalf("expected no overrides, got %v", o)
	}
}

func TestFlagOverrides_DirWinsOverEnvDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("METRICS_SOURCE_DRIVER", config.DriverMySQL)

	cfg, err := config.Load("", flagOverrides(cliFlags{dir: "/data/afisha"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Driver != config.DriverCSV || cfg.Source.Dir != "/data/afisha" {
		t.Fatalf("source = %+v", cfg.Source)
	}
}
