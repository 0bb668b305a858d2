package binance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"TradeCore/internal/models"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

const Exchange = "binance"

// KlineLimit is the most candles one klines request returns.
const KlineLimit = 1500

type BinanceClient struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
	httpClient  *http.Client
	maxRetries  int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewBinanceClient(apiKey, secretKey string, logger *slog.Logger) *BinanceClient {
	if logger == nil {
		logger = slog.Default()
	}
	// Create custom HTTP client with timeouts
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	// 10 requests per second with burst of 20
	limiter := rate.NewLimiter(rate.Limit(10), 20)

	return &BinanceClient{
		client:      futuresClient,
		rateLimiter: limiter,
		httpClient:  httpClient,
		maxRetries:  3,
		backoff:     100 * time.Millisecond,
		logger:      logger.With(slog.String("component", "binance")),
	}
}

// withRetry runs call behind the rate limiter, retrying with exponential
// backoff until it succeeds, retries run out or ctx ends.
func (c *BinanceClient) withRetry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		if err = call(); err == nil {
			return nil
		}
		if attempt == c.maxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
		c.logger.Warn("binance call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", waitTime),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64) ([]*futures.Kline, error) {
	var klines []*futures.Kline
	err := c.withRetry(ctx, "klines "+symbol, func() error {
		var err error
		klines, err = c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startTime).
			EndTime(endTime).
			Limit(KlineLimit).
			Do(ctx)
		return err
	})
	return klines, err
}

// FetchCandles returns the candles opening in [start, end] as Price rows,
// at most KlineLimit per call.
func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	klines, err := c.GetKlines(ctx, symbol, timeFrame, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	prices := make([]models.Price, 0, len(klines))
	for _, k := range klines {
		p, err := klineToPrice(symbol, timeFrame, k)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, nil
}

// LatestPrice returns the current futures price for symbol.
func (c *BinanceClient) LatestPrice(ctx context.Context, symbol string) (models.Tick, error) {
	var prices []*futures.SymbolPrice
	err := c.withRetry(ctx, "price "+symbol, func() error {
		var err error
		prices, err = c.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return models.Tick{}, err
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return models.Tick{}, fmt.Errorf("parse price %q for %s: %w", p.Price, symbol, err)
		}
		return models.Tick{Symbol: symbol, Price: price, Time: time.Now()}, nil
	}
	return models.Tick{}, fmt.Errorf("no price returned for %s", symbol)
}

func klineToPrice(symbol, timeFrame string, k *futures.Kline) (models.Price, error) {
	fields := [5]float64{}
	for i, s := range [5]string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Price{}, fmt.Errorf("parse kline %s %s at %d: %w", symbol, timeFrame, k.OpenTime, err)
		}
		fields[i] = f
	}
	return models.Price{
		Exchange:   Exchange,
		Symbol:     symbol,
		TimeFrame:  timeFrame,
		OpenTime:   time.UnixMilli(k.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(k.CloseTime).UTC(),
		Open:       fields[0],
		High:       fields[1],
		Low:        fields[2],
		Close:      fields[3],
		Volume:     fields[4],
		TradeCount: k.TradeNum,
	}, nil
}
