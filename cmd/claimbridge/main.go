package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sbsbridge/claimbridge/app/controllers"
	"github.com/sbsbridge/claimbridge/app/repository"
	apiv1 "github.com/sbsbridge/claimbridge/internal/api/v1"
	"github.com/sbsbridge/claimbridge/internal/pkg/bridge"
	"github.com/sbsbridge/claimbridge/internal/pkg/cache"
	"github.com/sbsbridge/claimbridge/internal/pkg/database"
	"github.com/sbsbridge/claimbridge/internal/pkg/env"
	"github.com/sbsbridge/claimbridge/internal/pkg/metrics/counter"
	"github.com/sbsbridge/claimbridge/internal/pkg/normalizer"
	"github.com/sbsbridge/claimbridge/internal/pkg/objectstore"
	"github.com/sbsbridge/claimbridge/internal/pkg/pipeline"
	"github.com/sbsbridge/claimbridge/internal/pkg/pricing"
	"github.com/sbsbridge/claimbridge/internal/pkg/router"
	"github.com/sbsbridge/claimbridge/internal/pkg/signer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, services := NewApplication()
	services.recovery.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fiberlog.Info("[Server] Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		fiberlog.Errorf("[Server] Shutdown: %v", err)
	}
	services.recovery.Stop()
	// In-flight submissions finish and record their terminal status; the
	// recovery sweeper of the next process picks up anything cut short.
	if err := services.bridge.Wait(ctx); err != nil {
		fiberlog.Warnf("[Server] Submissions still running at exit: %v", err)
	}
	if err := cache.Close(); err != nil {
		fiberlog.Warnf("[Server] Closing cache client: %v", err)
	}
}

type services struct {
	bridge   *bridge.Bridge
	recovery *bridge.Recovery
}

func NewApplication() (*fiber.App, *services) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repos := repository.NewFactory(database.GetDB(), database.GetGate()).Repositories()
	rdb := cache.GetClient()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/claimbridge to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// normalizer
	normCfg := normalizer.LoadConfig()
	provider, err := normalizer.NewProvider(normCfg, &http.Client{})
	if err != nil {
		panic(err)
	}
	norm := normalizer.New(repos.Mapping, repos.Catalog, provider,
		cache.NewJSONStore(rdb, "claims:normalize:", normCfg.CacheTTL), normCfg)
	fiberlog.Infof("[Normalizer] Provider: %s", norm.ProviderName())

	// pricing
	engine := pricing.NewEngine(repos.Catalog, repos.Facility)

	// signer
	sources := map[string]signer.KeySource{
		"file": signer.FileSource{Root: env.GetEnv("CERT_DIR", "")},
	}
	s3Cfg, err := objectstore.LoadConfig()
	if err != nil {
		panic(err)
	}
	if s3Cfg.IsEnabled() {
		client, err := objectstore.NewClient(s3Cfg)
		if err != nil {
			panic(err)
		}
		sources["s3"] = signer.S3Source{Client: client}
	}
	certStore := signer.NewCertificateStore(repos.Certificate,
		signer.NewKeyLoader(env.GetEnv("CERT_P12_PASSWORD", ""), sources))
	sgn := signer.New(certStore, nil)

	// bridge
	bridgeCfg := bridge.LoadConfig()
	counters := counter.NewSubmissionCounters(rdb)
	br := bridge.New(repos.Transaction,
		bridge.NewHTTPExchange(bridgeCfg.BaseURL, bridgeCfg.Token, &http.Client{Timeout: bridgeCfg.Timeout}),
		bridgeCfg,
		bridge.WithLocker(cache.NewLocker(rdb, "claims:submit:")),
		bridge.WithCounters(counters),
	)
	recovery := bridge.NewRecovery(br, repos.Transaction, bridgeCfg)

	waitTimeout := env.GetEnvDuration("SUBMIT_WAIT_TIMEOUT", 30*time.Second)
	source := env.GetEnv("APP_PUBLIC_URL", "http://localhost:4000")
	server := apiv1.NewAPIServer(apiv1.Controllers{
		Normalize:  controllers.NewNormalizeController(norm),
		Pricing:    controllers.NewPricingController(engine),
		Signature:  controllers.NewSignatureController(sgn, certStore),
		Submission: controllers.NewSubmissionController(br, waitTimeout),
		Claim:      controllers.NewClaimController(pipeline.New(norm, engine, sgn, br, source), waitTimeout),
		Stats:      controllers.NewStatsController(counters),
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	docPath := basePath + "public/docs/v1/openapi.yml"
	if _, err := apiv1.LoadDocument(context.Background(), docPath); err != nil {
		fiberlog.Warnf("[Server] %v", err)
	}
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: docPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	apiCfg := router.LoadApiConfig()
	apiCfg.LimiterStorage = cache.NewFiberStorage(env.GetEnvInt("RATE_LIMIT_CACHE_DB", 1))
	router.InstallRouter(app, router.NewApiRouter(apiCfg, server))

	return app, &services{bridge: br, recovery: recovery}
}
