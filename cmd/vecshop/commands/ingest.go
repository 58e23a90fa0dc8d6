package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/config"
	"github.com/kailas-cloud/vecshop/internal/transport/s3images"
	ingestuc "github.com/kailas-cloud/vecshop/internal/usecase/ingest"
	"github.com/kailas-cloud/vecshop/internal/watcher"
)

// NewIngestCommand loads a product catalog CSV into the vector store.
func NewIngestCommand(opts *Options) *cobra.Command {
	var (
		csvPath   string
		imagesDir string
		watch     bool
		cfg       ingestuc.Config
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed and store a product catalog",
		Long: "Read a product CSV (id, productDisplayName, masterCategory, subCategory, baseColour, " +
			"text_for_embedding), embed text and optional images, and upsert the products.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}
			if _, err := os.Stat(csvPath); err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if imagesDir != "" {
				a.cfg.Images.Dir = imagesDir
			}
			cfg.Images, err = imageSource(&a.cfg.Images)
			if err != nil {
				return err
			}

			if err := runIngest(a.Context(ctx), cmd, a, csvPath, cfg); err != nil || !watch {
				return err
			}

			// Later runs upsert on top of the existing indexes.
			cfg.Recreate = false
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("watching "+csvPath+" for changes"))
			w := watcher.New(csvPath, func(ctx context.Context) {
				if err := runIngest(ctx, cmd, a, csvPath, cfg); err != nil {
					a.logger.Error("Re-ingest failed", zap.String("csv", csvPath), zap.Error(err))
				}
			}, watcher.WithLogger(a.logger))
			return w.Run(a.Context(ctx))
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the catalog CSV")
	cmd.Flags().StringVar(&imagesDir, "images-dir", "", "Directory of <id>.jpg|jpeg|png images (overrides images.dir)")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", ingestuc.DefaultBatchSize, "Products per upsert batch")
	cmd.Flags().IntVar(&cfg.Workers, "workers", ingestuc.DefaultWorkers, "Concurrent embedding workers")
	cmd.Flags().IntVar(&cfg.UpsertRetries, "retries", ingestuc.DefaultUpsertRetries,
		"Upsert retries per batch (negative disables)")
	cmd.Flags().BoolVar(&cfg.Recreate, "recreate", false, "Drop and recreate both product indexes first")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest when the CSV changes")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, a *app, csvPath string, cfg ingestuc.Config) error {
	f, err := os.Open(filepath.Clean(csvPath))
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	res, err := ingestuc.New(a.docEmbedder, a.catalog, cfg).Run(ctx, f)
	printIngestResult(cmd, &res)
	return err
}

// imageSource returns nil when no image location is configured.
func imageSource(cfg *config.ImagesConfig) (ingestuc.ImageSource, error) {
	switch {
	case cfg.Dir != "":
		return ingestuc.DirImages(cfg.Dir), nil
	case cfg.S3.Bucket != "":
		src, err := s3images.New(s3images.Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 image source: %w", err)
		}
		return src, nil
	default:
		return nil, nil
	}
}

func printIngestResult(cmd *cobra.Command, res *ingestuc.Result) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s read=%d stored=%d failed=%d without_image=%d image_failed=%d duration=%s\n",
		headerStyle.Render("ingest"),
		res.Read, res.Stored, res.FailedTotal(), res.WithoutImage, res.ImageFailed, res.Duration.Round(time.Millisecond))
	for reason, n := range res.Failed {
		_, _ = fmt.Fprintf(out, "  %s %d\n", mutedStyle.Render(reason), n)
	}
}
