package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbitron/internal/backtest"
	"arbitron/internal/model"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestArchive(t *testing.T) {
	fake := &fakeS3{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewArchiver(logger, fake, "reports", "backtests")
	a.now = func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 7, time.UTC) }

	req := backtest.Request{Venues: []string{"binance"}, Pairs: []string{"BTC/USDT"}, InitialBalance: 100}
	res := model.BacktestResult{InitialBalance: 100, FinalBalance: 110, TotalProfit: 10, TotalTrades: 2, WinRate: 1}

	key, err := a.Archive(context.Background(), req, res)
	require.NoError(t, err)
	assert.Equal(t, "backtests/2025/02/03/040506.000000007.json", key)
	assert.Equal(t, "reports", aws.ToString(fake.input.Bucket))
	assert.Equal(t, key, aws.ToString(fake.input.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.input.ContentType))

	var doc Document
	require.NoError(t, json.Unmarshal(fake.body, &doc))
	assert.Equal(t, req.Venues, doc.Request.Venues)
	assert.Equal(t, 10.0, doc.Result.TotalProfit)
	assert.Equal(t, 2, doc.Result.TotalTrades)
}

func TestArchiveError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewArchiver(logger, fake, "reports", "").Archive(context.Background(), backtest.Request{}, model.BacktestResult{})
	assert.Error(t, err)
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewS3Archiver(context.Background(), logger, "", "x", "us-east-1")
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}
