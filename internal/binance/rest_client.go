package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"binance-portfolio-api/internal/config"
	"binance-portfolio-api/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.binance.com/api/v3"
	testnetBaseURL = "https://testnet.binance.vision/api/v3"

	defaultRecvWindow = 5000 // How long a signed request is valid in milliseconds
	maxPageSize       = 1000 // Upper bound Binance accepts for history endpoints
)

// RestClientInterface defines the read operations used against the Binance REST API.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetOrders(ctx context.Context, symbol string) ([]models.Order, error)
	GetTrades(ctx context.Context, symbol string) ([]models.Trade, error)
	GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client      *resty.Client
	apiKey      string
	secretKey   string
	recvWindow  int
	pageSize    int
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
	limiter     *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	logger = logger.Named("binance")

	endpoint := cfg.BaseURL
	switch {
	case endpoint != "":
		logger.Info("Using custom Binance API endpoint", zap.String("url", endpoint))
	case cfg.Testnet:
		endpoint = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	default:
		endpoint = baseURL
		logger.Info("Using Binance Production API")
	}

	client := resty.New().SetBaseURL(endpoint)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	// rate.Limit is requests per second.
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindow
	}
	pageSize := cfg.HistoryPageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &RestClient{
		client:      client,
		apiKey:      cfg.ApiKey,
		secretKey:   cfg.SecretKey,
		recvWindow:  recvWindow,
		pageSize:    pageSize,
		maxAttempts: maxAttempts,
		retryDelay:  time.Second,
		logger:      logger,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery stamps params with the current time and appends the signature.
// The signature must be the last parameter, so the result is a raw query string.
func (c *RestClient) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(c.recvWindow))
	query := params.Encode()
	return query + "&signature=" + c.sign(query)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}

	err := c.get(ctx, "/time", &result, func() (*resty.Request, string) {
		return c.client.R(), "/time"
	})
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}
	return result.ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// GetTickerPrice fetches the latest price for one symbol.
func (c *RestClient) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker TickerPrice

	err := c.get(ctx, "/ticker/price", &ticker, func() (*resty.Request, string) {
		return c.client.R().SetQueryParam("symbol", symbol), "/ticker/price"
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}
	return ticker.Price, nil
}

// GetOrders fetches every order the account has placed on symbol, oldest first.
// Without an orderId Binance returns only the newest page, so the walk always
// starts from orderId 0 and advances until a short page.
func (c *RestClient) GetOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	var fromID int64

	for {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("orderId", strconv.FormatInt(fromID, 10))

		var page []models.Order
		if err := c.getSigned(ctx, "/allOrders", params, &page); err != nil {
			return nil, fmt.Errorf("failed to get orders for %s: %w", symbol, err)
		}
		orders = append(orders, page...)

		if len(page) < c.pageSize {
			c.logger.Debug("Fetched order history", zap.String("symbol", symbol), zap.Int("count", len(orders)))
			return orders, nil
		}
		fromID = page[len(page)-1].OrderID + 1
	}
}

// GetTrades fetches every trade the account has made on symbol, oldest first,
// walking the history by trade id from fromId 0.
func (c *RestClient) GetTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	trades := make([]models.Trade, 0)
	var fromID int64

	for {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("fromId", strconv.FormatInt(fromID, 10))

		var page []models.Trade
		if err := c.getSigned(ctx, "/myTrades", params, &page); err != nil {
			return nil, fmt.Errorf("failed to get trades for %s: %w", symbol, err)
		}
		trades = append(trades, page...)

		if len(page) < c.pageSize {
			c.logger.Debug("Fetched trade history", zap.String("symbol", symbol), zap.Int("count", len(trades)))
			return trades, nil
		}
		fromID = page[len(page)-1].ID + 1
	}
}

// newRequestFunc builds a fresh request and the URL to send it to.
type newRequestFunc func() (*resty.Request, string)

// getSigned performs an authenticated GET. Each attempt is signed afresh so a
// retried request carries a current timestamp. The query goes into the URL
// verbatim because resty re-sorts query params, which would break the signature.
func (c *RestClient) getSigned(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.get(ctx, path, out, func() (*resty.Request, string) {
		req := c.client.R().SetHeader("X-MBX-APIKEY", c.apiKey)
		return req, path + "?" + c.signedQuery(params)
	})
}

func (c *RestClient) get(ctx context.Context, path string, out interface{}, newRequest newRequestFunc) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, newRequest)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, path string, newRequest newRequestFunc) (*resty.Response, error) {
	var lastErr error
	attempts := 0

	for i := 0; i < c.maxAttempts; i++ {
		attempts++
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+path))
		req, target := newRequest()
		resp, err := req.SetContext(ctx).Execute(method, target)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network or other client-side errors
			shouldRetry = true
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			statusCode := resp.StatusCode()
			lastErr = fmt.Errorf("request failed: %w", parseAPIError(resp))
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= http.StatusInternalServerError {
				shouldRetry = true
			}
		}

		if !shouldRetry || i == c.maxAttempts-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x the base delay
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryDelay
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", path),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if attempts > 1 {
		return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
	}
	return nil, lastErr
}
