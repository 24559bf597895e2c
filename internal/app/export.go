package app

import (
	"context"
	"errors"

	"perp-basis-alerts/internal/engine"
	"perp-basis-alerts/internal/report"
)

// Export fetches one snapshot and writes its candidates as CSV and/or PNG,
// optionally uploading the files to S3.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	maxRows := a.Config.ResolveMaxRows(opts.MaxRows)

	var uploader *report.Uploader
	if opts.Upload || a.Config.Export.S3.Enabled {
		var err error
		uploader, err = report.NewUploader(ctx, a.Config.Export.S3)
		if err != nil {
			return err
		}
	}

	tickers, err := a.newFetcher().FetchTickers(ctx)
	if err != nil {
		return err
	}

	svcOpts := a.detectOptions()
	candidates, skipped := engine.Detect(tickers, svcOpts)
	if len(skipped) > 0 {
		a.Logger.Debug().Int("skipped", len(skipped)).Msg("malformed tickers skipped")
	}
	if len(candidates) == 0 {
		a.Logger.Info().Msg("no candidates above the deviation threshold")
		return nil
	}

	limited := report.LimitCandidates(candidates, maxRows)
	opps := engine.Match(limited, a.loadRegistry())
	a.Logger.Info().Int("total", len(candidates)).Int("exported", len(limited)).Msg("exporting candidates")

	var written []string
	if opts.CSVPath != "" {
		if err := report.WriteCandidatesCSV(opts.CSVPath, limited, opps); err != nil {
			return err
		}
		written = append(written, opts.CSVPath)
	}

	if opts.PNGPath != "" {
		if err := report.WriteCandidatesPNG(opts.PNGPath, limited); err != nil {
			return err
		}
		written = append(written, opts.PNGPath)
	}

	if uploader == nil {
		return nil
	}
	for _, path := range written {
		key, err := uploader.Upload(ctx, path)
		if err != nil {
			return err
		}
		a.Logger.Info().Str("file", path).Str("key", key).Str("bucket", a.Config.Export.S3.Bucket).Msg("export uploaded")
	}
	return nil
}
