package alchemy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/bimakw/wallet-activity/internal/config"
	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
)

const (
	methodGetAssetTransfers = "alchemy_getAssetTransfers"

	// MaxPageSize is the largest maxCount the API accepts
	MaxPageSize = 1000
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type assetTransfersParams struct {
	FromBlock        string   `json:"fromBlock"`
	ToBlock          string   `json:"toBlock"`
	FromAddress      string   `json:"fromAddress,omitempty"`
	ToAddress        string   `json:"toAddress,omitempty"`
	Category         []string `json:"category"`
	ExcludeZeroValue bool     `json:"excludeZeroValue"`
	Order            string   `json:"order"`
	PageKey          string   `json:"pageKey,omitempty"`
	MaxCount         string   `json:"maxCount,omitempty"`
	WithMetadata     bool     `json:"withMetadata"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type assetTransfersResult struct {
	Transfers []entities.Transfer `json:"transfers"`
	PageKey   string              `json:"pageKey"`
}

type assetTransfersResponse struct {
	Result *assetTransfersResult `json:"result"`
	Error  *rpcError             `json:"error"`
}

// Client is a TransferSource backed by the Alchemy transfers API
type Client struct {
	http        *resty.Client
	endpoint    string
	endpointErr error
	logger      *zap.Logger
	requestID   atomic.Uint64
}

// NewClient creates a new Alchemy client. An unresolvable endpoint is not an
// error here; it surfaces as a configuration error on the first request.
func NewClient(cfg config.AlchemyConfig, logger *zap.Logger) *Client {
	endpoint, endpointErr := cfg.Endpoint()
	if endpointErr != nil {
		logger.Warn("Indexing API endpoint is not usable", zap.Error(endpointErr))
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
			if err := limiter.Wait(r.Context()); err != nil {
				logger.Warn("Rate limiter wait failed", zap.Error(err))
				return err
			}
			return nil
		}).
		AddResponseMiddleware(func(c *resty.Client, resp *resty.Response) error {
			if resp.StatusCode() >= 400 {
				logger.Warn("Indexing API request failed", zap.Int("status", resp.StatusCode()))
			}
			return nil
		})

	return &Client{
		http:        httpClient,
		endpoint:    endpoint,
		endpointErr: endpointErr,
		logger:      logger,
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.http.Close()
}

// GetAssetTransfers fetches one page of transfers matching query
func (c *Client) GetAssetTransfers(ctx context.Context, query repositories.TransferQuery) (*repositories.TransferPage, error) {
	if c.endpointErr != nil {
		return nil, apperrors.ConfigurationError(c.endpointErr, "Indexing API is not configured")
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  methodGetAssetTransfers,
		Params:  []interface{}{buildParams(query)},
	}

	var out assetTransfersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NetworkError(err, "Indexing API is unreachable")
	}

	if err := statusError(resp.StatusCode()); err != nil {
		return nil, err
	}

	if out.Error != nil {
		return nil, rpcErrorToFeedError(out.Error)
	}
	if out.Result == nil {
		return nil, fmt.Errorf("%s returned no result", methodGetAssetTransfers)
	}

	c.logger.Debug("Fetched asset transfers",
		zap.String("from_address", query.FromAddress),
		zap.String("to_address", query.ToAddress),
		zap.Int("count", len(out.Result.Transfers)),
		zap.Bool("has_more", out.Result.PageKey != ""),
	)

	return &repositories.TransferPage{
		Transfers: out.Result.Transfers,
		PageKey:   out.Result.PageKey,
	}, nil
}

func buildParams(query repositories.TransferQuery) assetTransfersParams {
	categories := make([]string, len(query.Categories))
	for i, cat := range query.Categories {
		categories[i] = string(cat)
	}

	order := query.Order
	if order == "" {
		order = repositories.OrderDescending
	}

	p := assetTransfersParams{
		FromBlock:        "0x0",
		ToBlock:          "latest",
		FromAddress:      query.FromAddress,
		ToAddress:        query.ToAddress,
		Category:         categories,
		ExcludeZeroValue: query.ExcludeZeroValue,
		Order:            string(order),
		PageKey:          query.PageKey,
		WithMetadata:     query.WithMetadata,
	}

	if query.MaxCount > 0 {
		count := query.MaxCount
		if count > MaxPageSize {
			count = MaxPageSize
		}
		p.MaxCount = fmt.Sprintf("0x%x", count)
	}
	return p
}

func statusError(status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.ConfigurationError(fmt.Errorf("status %d", status), "Indexing API rejected the API key")
	case status == http.StatusTooManyRequests || status >= 500:
		return apperrors.NetworkError(fmt.Errorf("status %d", status), "Indexing API is unavailable")
	default:
		return fmt.Errorf("%s returned status %d", methodGetAssetTransfers, status)
	}
}

func rpcErrorToFeedError(e *rpcError) error {
	err := errors.New(e.Message)
	switch {
	case e.Code == http.StatusTooManyRequests:
		return apperrors.NetworkError(err, "Indexing API rate limit exceeded")
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return apperrors.ConfigurationError(err, "Indexing API rejected the API key")
	default:
		return fmt.Errorf("%s failed with code %d: %w", methodGetAssetTransfers, e.Code, err)
	}
}

var _ repositories.TransferSource = (*Client)(nil)
