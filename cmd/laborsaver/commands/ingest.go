package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Gskdl78/Labor-saver/internal/embedder"
	"github.com/Gskdl78/Labor-saver/internal/ingestion"
)

// NewIngestCmd constructs the `laborsaver ingest` command, which loads the
// labor-insurance datasets into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var dir string
	var force bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the labor-insurance datasets into the vector store",
		Long: `Load the bundled labor-insurance JSON datasets, embed every record, and
upsert the results into the Qdrant vector store.

Document IDs are derived deterministically from each record's key, so
re-running ingestion updates records in place instead of duplicating them.
When the collection already holds documents the run is skipped unless
--force is given.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: labor_insurance_knowledge)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  laborsaver ingest
  laborsaver ingest --dir ./勞保資料集 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))))

			store, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			pipeline, err := ingestion.New(emb, store, log)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			if !cmd.Flags().Changed("dir") {
				dir = getEnvOrDefault("DATASET_DIR", defaultDatasetDir)
			}
			log.Info("starting ingestion", slog.String("dir", dir), slog.Bool("force", force))

			stats, err := pipeline.Run(ctx, dir, force)
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}
			if stats.Skipped {
				log.Info("collection already populated, skipped (use --force to re-ingest)")
				return nil
			}

			log.Info("ingestion complete",
				slog.Int("documents", stats.Documents),
				slog.Int("batches", stats.Batches),
				slog.Int("dataset_errors", stats.DatasetErrors),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", defaultDatasetDir, "Directory holding the labor-insurance JSON datasets")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest even when the collection already holds documents")

	return cmd
}
