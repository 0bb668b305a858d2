// Package storage uploads finished backtest reports to S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/backtest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig connects to AWS S3 or a compatible provider through Endpoint.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// NewS3Client builds an S3 client with static credentials.
func NewS3Client(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("storage: region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

// PutObjectAPI is the part of *s3.Client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Report is the archived form of a run.
type Report struct {
	RunID       string               `json:"run_id"`
	Exchange    string               `json:"exchange"`
	Symbol      string               `json:"symbol"`
	TimeFrame   string               `json:"timeframe"`
	Status      backtest.Status      `json:"status"`
	Error       string               `json:"error,omitempty"`
	StartTime   time.Time            `json:"start_time"`
	EndTime     time.Time            `json:"end_time"`
	Metrics     backtest.Metrics     `json:"metrics"`
	Metadata    backtest.Metadata    `json:"metadata"`
	Trades      []backtest.Trade     `json:"trades"`
	EquityCurve []models.EquityPoint `json:"equity_curve"`
}

// ReportArchiver writes a JSON report and a trades CSV per run under
// prefix/symbol/timeframe/run_id.
type ReportArchiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

func NewReportArchiver(client PutObjectAPI, bucket, prefix string, logger *slog.Logger) *ReportArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportArchiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(slog.String("component", "report_archiver")),
	}
}

func (a *ReportArchiver) keyFor(results *backtest.BacktestResults, name string) string {
	return path.Join(a.prefix, results.Symbol, results.TimeFrame, results.RunID, name)
}

// Archive uploads the run report and returns the key of the JSON object.
func (a *ReportArchiver) Archive(ctx context.Context, results *backtest.BacktestResults) (string, error) {
	if results == nil || results.RunID == "" {
		return "", fmt.Errorf("storage: results without run id")
	}

	report := NewReport(results)
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: encode report %s: %w", results.RunID, err)
	}
	reportKey := a.keyFor(results, "report.json")
	if err := a.put(ctx, reportKey, body, "application/json"); err != nil {
		return "", err
	}

	var csvBuf bytes.Buffer
	if err := backtest.WriteTrades(&csvBuf, results.Trades); err != nil {
		return "", fmt.Errorf("storage: encode trades %s: %w", results.RunID, err)
	}
	if err := a.put(ctx, a.keyFor(results, "trades.csv"), csvBuf.Bytes(), "text/csv"); err != nil {
		return "", err
	}

	a.logger.Info("report archived",
		slog.String("run_id", results.RunID),
		slog.String("bucket", a.bucket),
		slog.String("key", reportKey),
		slog.Int("trades", len(results.Trades)),
	)
	return reportKey, nil
}

func (a *ReportArchiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("storage: put object %s: %w", key, err)
	}
	return nil
}

func NewReport(results *backtest.BacktestResults) Report {
	return Report{
		RunID:       results.RunID,
		Exchange:    results.Config.Exchange,
		Symbol:      results.Symbol,
		TimeFrame:   results.TimeFrame,
		Status:      results.Status,
		Error:       results.Error,
		StartTime:   results.Config.StartTime,
		EndTime:     results.Config.EndTime,
		Metrics:     results.Metrics,
		Metadata:    results.Metadata,
		Trades:      results.Trades,
		EquityCurve: results.EquityCurve,
	}
}
