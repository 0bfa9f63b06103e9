package main

import (
	"context"
	"flag"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hangar/internal/modkit"
	"hangar/internal/modkit/module"
	"hangar/internal/platform/config"
	"hangar/internal/platform/logger"
	"hangar/internal/platform/metrics"
	"hangar/internal/platform/store"
	"hangar/internal/platform/validate"

	"hangar/internal/adapters/device/gateway"
	twrdom "hangar/internal/services/tower/domain"
	twrmod "hangar/internal/services/tower/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	gwCfg := root.Prefix("CORE_TOWER_GATEWAY_")

	l := logger.Get()
	validate.Init()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "tower",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
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
		fMode    = flag.String("mode", "daemon", "tower mode: daemon | sweep")
		fOlder   = flag.Duration("older-than", 30*time.Minute, "sweep mode: fail running commands older than this")
		fMetrics = flag.String("metrics", "", "expose /metrics on this addr, e.g. :9091 (empty = off)")
	)
	flag.Parse()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	// A fleet gateway URL selects the real device link; without one the
	// loopback acks every command, which is what dev and tests want
	var link twrdom.DeviceLink = gateway.Loopback{}
	if base := gwCfg.MayString("URL", ""); base != "" {
		link = gateway.NewClient(gateway.Options{
			BaseURL:   base,
			AuthToken: gwCfg.MayString("TOKEN", ""),
			Timeout:   gwCfg.MayDuration("TIMEOUT", 10*time.Second),
		})
	}

	tw := twrmod.New(deps, link, metrics.NewDispatch(prometheus.DefaultRegisterer))
	module.Register(tw.Name(), tw.Ports())

	ports := module.MustPortsOf[twrmod.Ports](tw)

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
		if err := ports.Dispatcher.Run(ctx); err != nil {
			l.Fatal().Err(err).Msg("tower daemon stopped")
		}

	case "sweep":
		n, err := ports.Dispatcher.HandleTimeouts(ctx, *fOlder)
		if err != nil {
			l.Fatal().Err(err).Msg("timeout sweep failed")
		}
		l.Info().Int64("failed", n).Msg("timeout sweep finished")

	default:
		l.Panic().Str("mode", *fMode).Msg("tower unknown -mode (expected: daemon | sweep)")
	}
}
