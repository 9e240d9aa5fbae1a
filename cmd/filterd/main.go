package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/config"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/executor"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/httpclient"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/model"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/observability"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/router"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/server"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/filter"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/logger"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/metrics"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/registry"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "filterd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting filterd",
		"addr", cfg.Addr,
		"version", Version,
		"page_size", cfg.OAFPageSize,
		"max_pages", cfg.OAFMaxPages)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := executor.New(appLog, httpclient.NewOutbound(),
		executor.WithPageSize(cfg.OAFPageSize),
		executor.WithMaxPages(cfg.OAFMaxPages))

	reg, err := registry.New(appLog, cfg.InterfaceCacheSize, func(model.Service) *filter.Interface {
		return filter.New(appLog, exec, filter.Options{PropertyFetchTimeout: cfg.PropertyFetchTimeout})
	})
	if err != nil {
		appLog.Error("registry setup failed", "err", err)
		return 1
	}
	defer reg.Close()

	if cfg.Metrics.Enabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)
		p.GaugeFunc("filter_interfaces", "Live per-service filter interfaces.", func() float64 {
			return float64(reg.Len())
		})
		go func() {
			if err := p.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	} else {
		observability.Init(nil, false)
	}

	handler := server.Routes(appLog, router.New(appLog, reg), reg)
	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
