package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/notifyflow/notifyflow/clients"
	"github.com/notifyflow/notifyflow/config"
	"github.com/notifyflow/notifyflow/engine"
	"github.com/notifyflow/notifyflow/metrics"
	"github.com/notifyflow/notifyflow/server"
	"github.com/notifyflow/notifyflow/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := session.NewRedisStore(redisClient, cfg.Redis.Namespace, cfg.Redis.FlowTTL.Std())

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	definitions := clients.NewTaskDefinitionClient(serviceOptions(cfg.Services.TaskDefinitions))
	directory := clients.NewAudienceClient(serviceOptions(cfg.Services.Audience))
	lookups := clients.NewLookupClient(serviceOptions(cfg.Services.Lookup))
	renderer := clients.NewRenderClient(serviceOptions(cfg.Services.Render))

	srv := server.New(
		definitions,
		store,
		engine.NewInterpreter(lookups, logger),
		engine.NewResolver(directory, logger),
		engine.NewDispatcher(renderer, store, collector, logger),
		collector,
		logger,
	)

	g := gin.Default()
	srv.Routes(g)
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if err := g.Run(cfg.Listen); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}

func serviceOptions(svc config.Service) clients.Options {
	return clients.Options{
		BaseURL:    svc.BaseURL,
		Timeout:    svc.Timeout.Std(),
		MaxRetries: svc.MaxRetries,
	}
}
