// Package reliability provides the cold-archival safety net: a
// nightly export of finalized strike bars to S3/R2-compatible object
// storage, generalized from the teacher's whole-database R2 backup
// service to a store-level export job over one day's worth of bars.
package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/manager"
	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/domain"
	"github.com/foaggregator/fo-aggregator/internal/store"
)

// Config controls the archival target and retention/cadence knobs
// (§12 "Retention/compression intervals: exposed as config knobs").
type Config struct {
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
	IntervalHours   int
}

// Archiver uploads finalized bars to object storage on a fixed cadence.
type Archiver struct {
	cfg      Config
	store    *store.Store
	uploader *manager.Uploader
	log      zerolog.Logger
}

// New builds the archiver. A blank Bucket disables archival entirely —
// Start becomes a no-op.
func New(ctx context.Context, cfg Config, st *store.Store, log zerolog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return &Archiver{cfg: cfg, store: st, log: log.With().Str("component", "reliability").Logger()}, nil
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.IntervalHours <= 0 {
		cfg.IntervalHours = 24
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Archiver{
		cfg:      cfg,
		store:    st,
		uploader: manager.NewUploader(client),
		log:      log.With().Str("component", "reliability").Logger(),
	}, nil
}

// Run performs one archival pass: export every timeframe's bars for the
// given symbol/expiry/day to a gzip-compressed JSON object.
func (a *Archiver) Run(ctx context.Context, symbol string, expiry time.Time, day time.Time) error {
	if a.uploader == nil {
		return nil // archival disabled
	}

	end := day.Add(24 * time.Hour)
	for _, tf := range []domain.Timeframe{domain.Timeframe1Min, domain.Timeframe5Min, domain.Timeframe15Min} {
		var rows []domain.StrikeBar
		for b := day; b.Before(end); b = b.Add(tf.Duration()) {
			bucketRows, err := a.store.FetchBucketStrikes(ctx, symbol, expiry, tf, b)
			if err != nil {
				return fmt.Errorf("fetch bars for archival: %w", err)
			}
			rows = append(rows, bucketRows...)
		}
		if len(rows) == 0 {
			continue
		}
		if err := a.uploadRows(ctx, symbol, expiry, tf, day, rows); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) uploadRows(ctx context.Context, symbol string, expiry time.Time, tf domain.Timeframe, day time.Time, rows []domain.StrikeBar) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(rows); err != nil {
		return fmt.Errorf("encode archive payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}

	key := objectKey(symbol, expiry, tf, day)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.cfg.Bucket),
		Key:             aws.String(key),
		Body:            &buf,
		ContentType:     aws.String("application/gzip"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload archive object %s: %w", key, err)
	}
	a.log.Info().Str("key", key).Int("rows", len(rows)).Msg("archived finalized bars")
	return nil
}

func objectKey(symbol string, expiry time.Time, tf domain.Timeframe, day time.Time) string {
	return fmt.Sprintf("fo-aggregator/%s/%s/%s/%s.json.gz",
		symbol, expiry.Format("2006-01-02"), tf, day.Format("2006-01-02"))
}

// Enabled reports whether archival is configured.
func (a *Archiver) Enabled() bool { return a.uploader != nil }
