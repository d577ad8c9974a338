package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/logger"
	"alfredoptarigan/candidate-screener/internal/pipeline"
)

var backfillBucket string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-analyse every stored resume that carries a resumeid and refresh its result and index entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return backfill(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().StringVarP(&backfillBucket, "bucket", "b", "", "bucket to scan (default is RESUME_BUCKET)")
}

func backfill(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	c, err := wire(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer c.close()

	c.worker.Start(ctx)
	defer c.worker.Stop()

	bucket := backfillBucket
	if bucket == "" {
		bucket = cfg.Storage.ResumeBucket
	}

	keys, err := c.storage.ListObjects(ctx, bucket)
	if err != nil {
		return err
	}
	log.Info("starting backfill", zap.String(logger.FieldBucket, bucket), zap.Int("objects", len(keys)))

	var processed, skipped, failed int
	for _, key := range keys {
		objLog := log.With(zap.String(logger.FieldBucket, bucket), zap.String(logger.FieldKey, key))

		// Without a stable id every run would create a new analysis.
		md, err := c.storage.ObjectMetadata(ctx, bucket, key)
		if err != nil || strings.TrimSpace(md[pipeline.MetadataKeyResumeID]) == "" {
			objLog.Warn("skipping object without resumeid metadata")
			skipped++
			continue
		}

		resp := c.resume.Handle(ctx, pipeline.NewUploadEvent(bucket, key))
		if resp.StatusCode >= 300 {
			objLog.Error("backfill failed", zap.Any("body", resp.Body))
			failed++
			continue
		}
		processed++
	}

	log.Info("backfill finished",
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}
