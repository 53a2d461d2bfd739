package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/segmenter/internal/core/api"
	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/core/db"
	"github.com/solatis/segmenter/internal/core/observability"
	"github.com/solatis/segmenter/internal/core/server"
	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/translate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC segment API and HTTP gateway",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP gateway port")
	serveCmd.Flags().Int("workers", 0, "audience workers (0 = GOMAXPROCS)")
	serveCmd.Flags().Bool("migrate", true, "apply pending migrations on start")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	database, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		n, err := db.MigrateUp(ctx, database)
		if err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		logger.Info("migrations applied", "count", n)
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	metrics := observability.NewMetrics()
	service, err := api.NewSegmentService(reg, db.NewSegmentStore(queries), db.NewCustomerStore(queries),
		api.WithLogger(logger),
		api.WithMetrics(metrics),
		api.WithGenerator(newGenerator(cfg, reg)),
		api.WithMaxInlineCustomers(cfg.Audience.MaxInlineCustomers),
		api.WithChunkSize(cfg.Audience.ChunkSize),
		api.WithCalculatorOptions(calculatorOptions(cfg)...),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Server, service, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create grpc server: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)
	httpServer, err := server.NewHTTPServer(cfg.Server, service, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("starting segmenter",
		"version", Version,
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"fields", reg.Len(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Start(gctx) })
	g.Go(func() error { return httpServer.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(sctx), grpcServer.Shutdown(sctx))
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newGenerator builds the translator chain: OpenAI first when configured
// and keyed, the keyword translator always last.
func newGenerator(cfg *config.Config, reg *rules.Registry) *translate.Chain {
	var translators []translate.Translator
	if cfg.Translate.Provider == config.ProviderOpenAI {
		key := config.OpenAIAPIKey()
		if key == "" {
			logger.Warn("OPENAI_API_KEY not set, falling back to keyword translation")
		} else {
			oa, err := translate.NewOpenAITranslator(reg, translate.OpenAIConfig{
				APIKey:  key,
				Model:   cfg.Translate.Model,
				BaseURL: cfg.Translate.BaseURL,
				Timeout: cfg.Translate.Timeout,
			}, logger)
			if err != nil {
				logger.Warn("openai translator disabled", "error", err)
			} else {
				translators = append(translators, oa)
			}
		}
	}
	translators = append(translators, translate.NewKeywordTranslator())
	return translate.NewChain(logger, translators...)
}

func calculatorOptions(cfg *config.Config) []rules.CalculatorOption {
	opts := []rules.CalculatorOption{rules.WithCaseSensitive(cfg.Audience.CaseSensitive)}
	if cfg.Audience.Workers > 0 {
		opts = append(opts, rules.WithWorkers(cfg.Audience.Workers))
	}
	return opts
}
