package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"pawdesk/app/client/llm"
	"pawdesk/app/config"
	"pawdesk/app/server"
	"pawdesk/app/service/breaker"
	"pawdesk/app/service/convcache"
	"pawdesk/app/service/conversation"
	"pawdesk/app/service/engine"
	"pawdesk/app/service/executor"
	"pawdesk/app/service/metrics"
	"pawdesk/app/service/queue"
	"pawdesk/app/service/resolver"
	"pawdesk/app/service/tools"
	"pawdesk/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.ProvideValue[metrics.Sink](di, metrics.NewPromSink(prometheus.DefaultRegisterer))

	do.ProvideValue(di, conversation.Backends{
		Primary:  llm.NewClient("primary", cfg.LLM.Primary),
		Fallback: llm.NewClient("fallback", cfg.LLM.Fallback),
	})

	registry, source, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("tool registry init failed: %v", err)
	}
	do.ProvideValue(di, registry)
	do.ProvideValue(di, source)

	do.Provide(di, breaker.New)
	do.Provide(di, convcache.New)
	do.Provide(di, resolver.New)
	do.Provide(di, executor.New)
	do.Provide(di, conversation.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)
	do.Provide(di, server.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*breaker.Service](di).RunSweepLoop(appCtx)
	go do.MustInvoke[*convcache.Service](di).RunSweepLoop(appCtx)
	go do.MustInvoke[*conversation.Service](di).RunSweepLoop(appCtx)

	go do.MustInvoke[*engine.Service](di).Run(appCtx)

	if cfg.Server.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, promhttp.Handler()); err != nil {
				slog.Error("Metrics listener failed", "error", err)
			}
		}()
	}

	go func() {
		if err := do.MustInvoke[*server.Service](di).Run(appCtx); err != nil {
			slog.Error("Webhook server stopped", "error", err)
			cancel()
		}
	}()

	<-appCtx.Done()
}

// buildRegistry connects the configured MCP servers and registers every
// catalog tool they can serve.
func buildRegistry(cfg *config.Config) (*tools.Registry, *tools.MCPSource, error) {
	registry := tools.NewRegistry()

	source, err := tools.ConnectMCP(cfg.MCP)
	if err != nil {
		return nil, nil, err
	}

	for _, spec := range tools.Catalog(source.Handler) {
		if err := registry.Register(spec); err != nil {
			return nil, nil, err
		}
	}

	return registry, source, nil
}
