package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"binance-portfolio-api/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	testAPIKey    = "test_api_key"
	testSecretKey = "test_secret_key"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:      client,
		apiKey:      testAPIKey,
		secretKey:   testSecretKey,
		recvWindow:  defaultRecvWindow,
		pageSize:    maxPageSize,
		maxAttempts: 1,
		retryDelay:  time.Millisecond,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

// assertSigned checks the API key header and that the signature covers every
// other query parameter in the order they were sent.
func assertSigned(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, testAPIKey, r.Header.Get("X-MBX-APIKEY"))

	raw := r.URL.RawQuery
	idx := strings.LastIndex(raw, "&signature=")
	if !assert.NotEqual(t, -1, idx, "signature must be the last query parameter") {
		return
	}
	payload, signature := raw[:idx], raw[idx+len("&signature="):]

	mac := hmac.New(sha256.New, []byte(testSecretKey))
	mac.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), signature)

	q := r.URL.Query()
	assert.NotEmpty(t, q.Get("timestamp"))
	assert.Equal(t, "5000", q.Get("recvWindow"))
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		expectedTime := time.Now().UnixMilli()
		mockResponse := fmt.Sprintf(`{"serverTime": %d}`, expectedTime)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime(context.Background())

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})

	t.Run("APIError", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code": -1001, "msg": "Internal error"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime(context.Background())

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get server time")
		assert.Contains(t, err.Error(), "request failed") // Check for the error from doRequest
		assert.Equal(t, int64(0), serverTime)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, int64(-1001), apiErr.Code)
		assert.Equal(t, "Internal error", apiErr.Message)
	})
}

func TestGetTickerPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, "RUNEUSDT", r.URL.Query().Get("symbol"))
			assert.Empty(t, r.Header.Get("X-MBX-APIKEY"), "ticker price is a public endpoint")
			_, _ = w.Write([]byte(`{"symbol":"RUNEUSDT","price":"1.35000000"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		price, err := rc.GetTickerPrice(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		assert.Equal(t, "1.35", price.String())
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		price, err := rc.GetTickerPrice(context.Background(), "NOPE")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get ticker price for NOPE")
		assert.Contains(t, err.Error(), "Invalid symbol.")
		assert.True(t, price.IsZero())
	})

	t.Run("MalformedPrice", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":"RUNEUSDT","price":"not-a-number"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetTickerPrice(context.Background(), "RUNEUSDT")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode /ticker/price response")
	})
}

func TestGetTrades(t *testing.T) {
	t.Run("SignedRequest", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/myTrades", r.URL.Path)
			assert.Equal(t, "RUNEUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "1000", r.URL.Query().Get("limit"))
			assert.Equal(t, "0", r.URL.Query().Get("fromId"))
			assertSigned(t, r)
			_, _ = w.Write([]byte(`[
				{"symbol":"RUNEUSDT","id":28457,"orderId":100234,"orderListId":-1,"price":"1.00000000","qty":"1000.00000000",
				 "quoteQty":"1000.00000000","commission":"1.00000000","commissionAsset":"RUNE","time":1499865549590,
				 "isBuyer":true,"isMaker":false,"isBestMatch":true}
			]`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		trades, err := rc.GetTrades(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		require.Len(t, trades, 1)
		trade := trades[0]
		assert.Equal(t, int64(28457), trade.ID)
		assert.Equal(t, int64(-1), trade.OrderListID)
		assert.True(t, trade.Quantity.Equal(decimal.NewFromInt(1000)))
		assert.True(t, trade.Commission.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, "1000.00000000", trade.Quantity.String(), "exchange text is kept")

		encoded, err := json.Marshal(trade)
		require.NoError(t, err)
		assert.Contains(t, string(encoded), `"price":"1.00000000","qty":"1000.00000000","quoteQty":"1000.00000000","commission":"1.00000000"`)
		assert.Equal(t, "RUNE", trade.CommissionAsset)
		assert.Equal(t, "BUY", string(trade.Side()))
	})

	t.Run("WalksFromOldest", func(t *testing.T) {
		var calls int32
		history := exchangeHistory(t, "fromId", []int64{1, 2, 3, 4, 5}, func(id int64) string {
			return fmt.Sprintf(`{"id":%d,"price":"1","qty":"1","commission":"0"}`, id)
		})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			assertSigned(t, r)
			history(w, r)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.pageSize = 2

		trades, err := rc.GetTrades(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		require.Len(t, trades, 5)
		for i, trade := range trades {
			assert.Equal(t, int64(i+1), trade.ID)
		}
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("EmptyHistory", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		trades, err := rc.GetTrades(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		assert.NotNil(t, trades)
		assert.Empty(t, trades)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		trades, err := rc.GetTrades(context.Background(), "RUNEUSDT")

		require.Error(t, err)
		assert.Nil(t, trades)
		assert.Contains(t, err.Error(), "failed to get trades for RUNEUSDT")

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, int64(-2015), apiErr.Code)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})
}

func TestGetOrders(t *testing.T) {
	t.Run("WalksFromOldest", func(t *testing.T) {
		sides := map[int64]string{10: "BUY", 11: "SELL", 12: "BUY", 13: "SELL"}
		history := exchangeHistory(t, "orderId", []int64{10, 11, 12, 13}, func(id int64) string {
			return fmt.Sprintf(`{"symbol":"RUNEUSDT","orderId":%d,"side":%q,"status":"FILLED"}`, id, sides[id])
		})
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/allOrders", r.URL.Path)
			assertSigned(t, r)
			history(w, r)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.pageSize = 2

		orders, err := rc.GetOrders(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		require.Len(t, orders, 4)
		for i, order := range orders {
			assert.Equal(t, int64(10+i), order.OrderID)
		}
		assert.Equal(t, "SELL", string(orders[1].Side))
	})

	t.Run("NonJSONError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetOrders(context.Background(), "RUNEUSDT")

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "upstream unavailable", apiErr.Message)
		assert.Equal(t, int64(0), apiErr.Code)
	})
}

func TestDoRequest_Retries(t *testing.T) {
	t.Run("SingleAttemptByDefault", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetTickerPrice(context.Background(), "RUNEUSDT")

		assert.Error(t, err)
		assert.NotContains(t, err.Error(), "attempts")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{"symbol":"RUNEUSDT","price":"2.5"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.maxAttempts = 3

		price, err := rc.GetTickerPrice(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		assert.Equal(t, "2.5", price.String())
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("ResignsEachAttempt", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assertSigned(t, r)
			if atomic.AddInt32(&calls, 1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.maxAttempts = 2

		_, err := rc.GetTrades(context.Background(), "RUNEUSDT")

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("DoesNotRetryClientErrors", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1100,"msg":"Illegal characters found in parameter 'symbol'."}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.maxAttempts = 3

		_, err := rc.GetTickerPrice(context.Background(), "RUNE USDT")

		assert.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("GivesUpAfterMaxAttempts", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()
		rc.maxAttempts = 3

		_, err := rc.GetTickerPrice(context.Background(), "RUNEUSDT")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})
}

func TestDoRequest_ContextCanceled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.GetOrders(ctx, "RUNEUSDT")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true, ApiKey: "k", SecretKey: "s"}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.NotNil(t, rc)
		assert.Equal(t, testnetBaseURL, rc.client.BaseURL)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.Binance{Testnet: false}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.Equal(t, baseURL, rc.client.BaseURL)
	})

	t.Run("CustomEndpointWins", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true, BaseURL: "http://localhost:9999/api/v3"}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.Equal(t, "http://localhost:9999/api/v3", rc.client.BaseURL)
	})

	t.Run("Defaults", func(t *testing.T) {
		rc := NewRestClient(&config.Binance{}, zap.NewNop())
		assert.Equal(t, defaultRecvWindow, rc.recvWindow)
		assert.Equal(t, maxPageSize, rc.pageSize)
		assert.Equal(t, 1, rc.maxAttempts)
		assert.Equal(t, rate.Inf, rc.limiter.Limit())
	})

	t.Run("ConfiguredLimits", func(t *testing.T) {
		cfg := &config.Binance{RateLimit: 10, RateLimitBurst: 3, HistoryPageSize: 250, MaxAttempts: 2, RecvWindow: 1000}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.Equal(t, rate.Limit(10), rc.limiter.Limit())
		assert.Equal(t, 3, rc.limiter.Burst())
		assert.Equal(t, 250, rc.pageSize)
		assert.Equal(t, 2, rc.maxAttempts)
		assert.Equal(t, 1000, rc.recvWindow)
	})
}

// exchangeHistory serves ids the way Binance's history endpoints do: without
// idParam it returns the newest limit rows, otherwise up to limit rows with
// an id at or above idParam.
func exchangeHistory(t *testing.T, idParam string, ids []int64, row func(id int64) string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		limit, err := strconv.Atoi(query.Get("limit"))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var page []int64
		if raw := query.Get(idParam); raw == "" {
			start := len(ids) - limit
			if start < 0 {
				start = 0
			}
			page = ids[start:]
		} else {
			from, err := strconv.ParseInt(raw, 10, 64)
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			for _, id := range ids {
				if id >= from && len(page) < limit {
					page = append(page, id)
				}
			}
		}

		rows := make([]string, 0, len(page))
		for _, id := range page {
			rows = append(rows, row(id))
		}
		_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}
}
