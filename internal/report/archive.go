// Package report archives backtest results to S3-compatible object storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"arbitron/internal/backtest"
	"arbitron/internal/model"
)

// PutObjectAPI is the subset of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes one JSON document per backtest run.
type Archiver struct {
	logger *slog.Logger
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// Document is the archived form of a run.
type Document struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Request     backtest.Request     `json:"request"`
	Result      model.BacktestResult `json:"result"`
}

func NewArchiver(logger *slog.Logger, client PutObjectAPI, bucket, prefix string) *Archiver {
	return &Archiver{logger: logger, client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// NewS3Archiver builds an Archiver on the default AWS credential chain.
func NewS3Archiver(ctx context.Context, logger *slog.Logger, bucket, prefix, region string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: report: bucket name is required", model.ErrConfiguration)
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("report: load aws config: %w", err)
	}
	return NewArchiver(logger, s3.NewFromConfig(awsCfg), bucket, prefix), nil
}

func (a *Archiver) key(at time.Time) string {
	prefix := a.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + at.UTC().Format("2006/01/02/150405.000000000") + ".json"
}

// Archive uploads the run and returns its object key.
func (a *Archiver) Archive(ctx context.Context, req backtest.Request, res model.BacktestResult) (string, error) {
	at := a.now()
	body, err := json.Marshal(Document{GeneratedAt: at.UTC(), Request: req, Result: res})
	if err != nil {
		return "", fmt.Errorf("report: encode: %w", err)
	}
	key := a.key(at)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("report: put object %s: %w", key, err)
	}
	a.logger.Info("report: backtest archived", "bucket", a.bucket, "key", key, "bytes", len(body))
	return key, nil
}
