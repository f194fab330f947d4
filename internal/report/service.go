package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"binance-portfolio-api/internal/models"
	"binance-portfolio-api/internal/portfolio"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMissingSymbol is returned when a report is requested without a pair symbol.
var ErrMissingSymbol = errors.New("missing symbol")

// ErrSnapshotsDisabled is returned by Snapshots when no store is configured.
var ErrSnapshotsDisabled = errors.New("snapshot recording is disabled")

// UpstreamError reports that one of the exchange reads behind a report failed.
type UpstreamError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Gateway is the subset of the exchange client a report needs.
type Gateway interface {
	GetOrders(ctx context.Context, symbol string) ([]models.Order, error)
	GetTrades(ctx context.Context, symbol string) ([]models.Trade, error)
	GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SnapshotStore persists and lists computed snapshots.
type SnapshotStore interface {
	Create(ctx context.Context, snapshot *models.Snapshot) error
	List(ctx context.Context, symbol string, limit int) ([]models.Snapshot, error)
}

// Service builds portfolio reports for a single trading pair.
type Service struct {
	gateway    Gateway
	snapshots  SnapshotStore
	quoteAsset string
	logger     *zap.Logger
}

// NewService creates a report service. snapshots may be nil, in which case
// reports are not recorded.
func NewService(gateway Gateway, snapshots SnapshotStore, quoteAsset string, logger *zap.Logger) *Service {
	if quoteAsset == "" {
		quoteAsset = portfolio.DefaultQuoteAsset
	}
	return &Service{
		gateway:    gateway,
		snapshots:  snapshots,
		quoteAsset: quoteAsset,
		logger:     logger.Named("report"),
	}
}

// Build fetches orders, trades and the current price for symbol concurrently,
// then derives the portfolio metrics. Any failed read fails the whole report.
func (s *Service) Build(ctx context.Context, symbol, requestID string) (*Report, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrMissingSymbol
	}

	l := s.logger.With(zap.String("symbol", symbol), zap.String("request_id", requestID))

	var (
		orders []models.Order
		trades []models.Trade
		price  decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if orders, err = s.gateway.GetOrders(gctx, symbol); err != nil {
			return &UpstreamError{Symbol: symbol, Op: "fetch orders", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if trades, err = s.gateway.GetTrades(gctx, symbol); err != nil {
			return &UpstreamError{Symbol: symbol, Op: "fetch trades", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if price, err = s.gateway.GetTickerPrice(gctx, symbol); err != nil {
			return &UpstreamError{Symbol: symbol, Op: "fetch price", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		l.Error("Failed to retrieve exchange data", zap.Error(err))
		return nil, err
	}

	baseAsset := portfolio.BaseAsset(symbol, s.quoteAsset)
	report := Assemble(symbol, orders, trades, portfolio.Calculate(trades, baseAsset, price))

	l.Info("Built portfolio report",
		zap.String("base_asset", baseAsset),
		zap.Int("orders", report.Orders.Total),
		zap.Int("trades", report.Trades.Total),
		zap.Stringer("net_balance", report.Portfolio.NetBalance),
		zap.Stringer("unrealized_pnl", report.Portfolio.UnrealizedPnL),
	)

	s.record(ctx, l, report.Snapshot(requestID, baseAsset))
	return report, nil
}

// record saves a snapshot without failing the request it belongs to.
func (s *Service) record(ctx context.Context, l *zap.Logger, snapshot *models.Snapshot) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		l.Warn("Failed to record snapshot", zap.Error(err))
	}
}

// Snapshots returns previously recorded snapshots for symbol, newest first.
func (s *Service) Snapshots(ctx context.Context, symbol string, limit int) ([]models.Snapshot, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrMissingSymbol
	}
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	return s.snapshots.List(ctx, symbol, limit)
}
