package calculator

import (
	"context"
	"fmt"

	"afisha-metrics/pkg/logging"
	"afisha-metrics/pkg/models"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Run exécute les quatre moteurs en parallèle sur les mêmes datasets immuables.
// L'échec d'un moteur n'interrompt pas les autres: chaque erreur est rangée à côté de son rapport.
func Run(ctx context.Context, ds models.Datasets, cfg models.Config) models.Reports {
	var (
		reports models.Reports
		bar     *progressbar.ProgressBar
	)
	if cfg.Progress {
		bar = progressbar.Default(4, "computing reports")
	}

	// Les closures renvoient toujours nil: l'erreur d'un moteur reste dans son rapport
	// et ne doit ni annuler les autres ni remonter par g.Wait.
	var g errgroup.Group
	step := func(name string, err error) error {
		if bar != nil {
			_ = bar.Add(1)
		}
		if err != nil {
			logging.Error().Err(err).Str("report", name).Msg("compute failed")
		} else {
			logging.Debug().Str("report", name).Msg("computed")
		}
		return nil
	}

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			reports.EngagementErr = err
			return step("engagement", err)
		}
		r, err := ComputeEngagement(ds.Visits, cfg.HistogramBins)
		reports.Engagement, reports.EngagementErr = r, wrap("engagement", err)
		return step("engagement", reports.EngagementErr)
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			reports.CohortErr = err
			return step("cohort", err)
		}
		r, err := ComputeCohorts(ds.Orders, cfg)
		reports.Cohort, reports.CohortErr = r, wrap("cohort", err)
		return step("cohort", reports.CohortErr)
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			reports.ConversionErr = err
			return step("conversion", err)
		}
		r, err := ComputeConversion(ds.Visits, ds.Orders)
		reports.Conversion, reports.ConversionErr = r, wrap("conversion", err)
		return step("conversion", reports.ConversionErr)
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			reports.AttributionErr = err
			return step("attribution", err)
		}
		r, err := ComputeAttribution(ds.Visits, ds.Orders, ds.Costs, cfg.Verbose)
		reports.Attribution, reports.AttributionErr = r, wrap("attribution", err)
		return step("attribution", reports.AttributionErr)
	})
	_ = g.Wait() // toujours nil, voir plus haut

	if bar != nil {
		_ = bar.Finish()
	}
	logging.Info().
		Int("visits", len(ds.Visits)).
		Int("orders", len(ds.Orders)).
		Int("costs", len(ds.Costs)).
		Bool("engagement_ok", reports.EngagementErr == nil).
		Bool("cohort_ok", reports.CohortErr == nil).
		Bool("conversion_ok", reports.ConversionErr == nil).
		Bool("attribution_ok", reports.AttributionErr == nil).
		Msg("reports computed")
	return reports
}

func wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("compute %s: %w", name, err)
}
