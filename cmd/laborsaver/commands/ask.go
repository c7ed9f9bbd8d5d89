package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gskdl78/Labor-saver/internal/engine"
	"github.com/Gskdl78/Labor-saver/internal/logging"
)

// NewAskCmd constructs the `laborsaver ask` command, which answers a single
// question through the tiered pipeline and prints the result to stdout.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a labor insurance question",
		Long: `Ask a single labor insurance question from the command line.

The question runs through the same tiered pipeline as the HTTP API: the
curated Q&A table first, then retrieval-augmented generation over the
ingested regulation datasets.

Examples:
  laborsaver ask "失能等級第3級可以領多少天？"
  laborsaver ask "勞保給付有哪些？"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.close()

			question := strings.Join(args, " ")
			resp, err := rt.engine.Answer(ctx, "cli", question)
			if err != nil {
				var rle *engine.RateLimitError
				if errors.As(err, &rle) {
					return fmt.Errorf("ask: rate limited, retry in %s", rle.RetryAfter.Round(time.Second))
				}
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Answer)
			if names := resp.SourceNames(); len(names) > 0 {
				fmt.Printf("\n資料來源：%s\n", strings.Join(names, "、"))
			}
			return nil
		},
	}

	return cmd
}
