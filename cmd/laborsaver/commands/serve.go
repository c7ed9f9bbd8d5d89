package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/Gskdl78/Labor-saver/internal/logging"
	"github.com/Gskdl78/Labor-saver/internal/provider"
	"github.com/Gskdl78/Labor-saver/internal/server"
	"github.com/Gskdl78/Labor-saver/internal/store"
	"github.com/Gskdl78/Labor-saver/internal/tracing"
)

// NewServeCmd constructs the `laborsaver serve` command, which starts the
// HTTP server exposing the question-answering API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the laborsaver HTTP server",
		Long: `Start the laborsaver HTTP server on localhost.

The server exposes the chat API plus the disability benefit lookup and the
office/hospital maps endpoints. Questions flow through the tiered pipeline:
curated Q&A table, retrieval-augmented generation, degraded fallback.

Examples:
  laborsaver serve
  laborsaver serve --port 8000
  MODEL_PROVIDER=openai laborsaver serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.close()

			// Open the answer log. LABORSAVER_ANSWER_DB overrides the default
			// path (~/.laborsaver/answers.db). Set to "disabled" to turn off.
			var answerLog store.AnswerLog
			dbPath := os.Getenv("LABORSAVER_ANSWER_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("answer log: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					al, alErr := store.Open(dbPath)
					if alErr != nil {
						log.Warn("answer log: failed to open store, disabling", slog.Any("error", alErr))
					} else {
						answerLog = al
						defer func() { _ = al.Close() }()
						log.Info("answer log: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("answer log: disabled via LABORSAVER_ANSWER_DB=disabled")
			}

			var pingers []server.Pinger
			if p := server.NewLLMPinger(provider.NewHealthCheck(rt.providerCfg), string(rt.providerCfg.Backend)); p != nil {
				pingers = append(pingers, p)
			}
			pingers = append(pingers, server.NewQdrantPinger(rt.vecStore.Client()))

			srv, err := server.New(&server.Deps{
				Engine:      rt.engine,
				Presets:     rt.presets,
				Locator:     buildLocator(log),
				Benefits:    buildBenefitsTable(log),
				AnswerLog:   answerLog,
				VectorStore: rt.vecStore,
				CacheStats:  rt.cache.Stats,
				Reloader:    rt.pipeline,
			}, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        pingers,
				APIKey:         os.Getenv("LABORSAVER_API_KEY"),
				EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
				Collection:     getEnvOrDefault("QDRANT_COLLECTION", defaultCollection),
				DatasetDir:     getEnvOrDefault("DATASET_DIR", defaultDatasetDir),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")

	return cmd
}
