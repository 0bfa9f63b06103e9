package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hangar/internal/modkit"
	"hangar/internal/modkit/module"
	"hangar/internal/platform/config"
	"hangar/internal/platform/logger"
	"hangar/internal/platform/metrics"
	"hangar/internal/platform/store"
	"hangar/internal/platform/validate"

	arcdom "hangar/internal/services/archivist/domain"
	arcmod "hangar/internal/services/archivist/module"
	bbmod "hangar/internal/services/blackbox/module"
)

func parseWhen(label, v string) time.Time {
	// Accept either date or date+hour
	// - "YYYY-MM-DD" (midnight UTC)
	// - "YYYY-MM-DDTHH"
	if v == "" {
		return time.Time{}
	}
	layouts := []string{"2006-01-02T15", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			if layout == "2006-01-02" {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
			return t.UTC()
		}
		lastErr = err
	}
	panic(fmt.Errorf("bad -%s: %w", label, lastErr))
}

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()
	validate.Init()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "archivist",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: true,
			Addr:    chCfg.MustString("ADDR"),
			DB:      chCfg.MayString("DB", "hangar"),
			User:    chCfg.MayString("USER", "default"),
			Pass:    chCfg.MayString("PASS", ""),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	// Flags
	var (
		fMode    = flag.String("mode", "daemon", "archivist mode: daemon | trigger | optimize")
		fJob     = flag.String("job", "", "trigger mode: job type POSITIONS | COMMANDS | STATUS")
		fBy      = flag.String("requested-by", "", "trigger mode: requesting principal recorded on the task")
		fDrone   = flag.Int64("drone", 0, "optimize mode: drone id")
		fFrom    = flag.String("from", "", "optimize mode: window start (UTC) YYYY-MM-DD or YYYY-MM-DDTHH")
		fUntil   = flag.String("until", "", "optimize mode: window end (UTC, exclusive)")
		fMetrics = flag.String("metrics", "", "expose /metrics on this addr, e.g. :9090 (empty = off)")
	)
	flag.Parse()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	arc := arcmod.New(deps, metrics.NewArchival(prometheus.DefaultRegisterer))
	module.Register(arc.Name(), arc.Ports())
	ports := module.MustPortsOf[arcmod.Ports](arc)

	if *fMetrics != "" {
		go func() {
			if err := metrics.ListenAndServe(*fMetrics); err != nil {
				l.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	ctx := context.Background()

	switch *fMode {
	case "daemon":
		// Blackbox retention rides this daemon; the status archive has no
		// long lived process of its own
		bb := bbmod.New(deps)
		module.Register(bb.Name(), bb.Ports())
		bbPorts := module.MustPortsOf[bbmod.Ports](bb)
		bbOpts := bbmod.FromConfig(root)

		go func() {
			t := time.NewTicker(24 * time.Hour)
			defer t.Stop()
			for range t.C {
				cutoff := time.Now().UTC().Add(-bbOpts.Retention)
				if _, err := bbPorts.Janitor.PurgeOlderThan(ctx, cutoff); err != nil {
					l.Warn().Err(err).Msg("blackbox retention sweep failed")
				}
			}
		}()

		if err := ports.Daemon.RunDaemon(ctx); err != nil {
			l.Fatal().Err(err).Msg("archivist daemon stopped")
		}

	case "trigger":
		j, err := arcdom.ParseJobType(*fJob)
		if err != nil {
			l.Panic().Str("job", *fJob).Msg("trigger mode: -job must be POSITIONS | COMMANDS | STATUS")
		}
		t, err := ports.Scheduler.TriggerArchive(ctx, j, *fBy)
		if err != nil {
			l.Fatal().Err(err).Msg("trigger failed")
		}
		l.Info().
			Str("batch_id", t.BatchID).
			Time("range_start", t.RangeStart).
			Time("range_end", t.RangeEnd).
			Msg("archive task created")

	case "optimize":
		if *fDrone <= 0 {
			l.Panic().Msg("optimize mode: -drone is required")
		}
		w := arcdom.Window{From: parseWhen("from", *fFrom), To: parseWhen("until", *fUntil)}
		rep, err := ports.Compactor.Optimize(ctx, *fDrone, w)
		if err != nil {
			l.Fatal().Err(err).Msg("optimize failed")
		}
		l.Info().
			Int64("duplicates", rep.DuplicatesRemoved).
			Int64("anomalies", rep.AnomaliesRemoved).
			Int64("removed", rep.TotalRemoved).
			Msg("compaction finished")

	default:
		l.Panic().Str("mode", *fMode).Msg("archivist unknown -mode (expected: daemon | trigger | optimize)")
	}
}
