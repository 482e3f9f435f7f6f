// Package api is the client for the vault storage service REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/constants"
	vhttp "github.com/vaultlink/vaultlink/internal/http"
	"github.com/vaultlink/vaultlink/internal/logging"
	"github.com/vaultlink/vaultlink/internal/models"
	"github.com/vaultlink/vaultlink/internal/ratelimit"
)

// maxErrorBody bounds how much of a non-envelope error body is kept.
const maxErrorBody = 512

// retryLogger adapts the CLI logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Client talks to the storage service. Catalog and parameter calls go
// through a bounded client; upload and download calls use an untimed
// transfer client and rely on their context.
type Client struct {
	apiClient      *nethttp.Client
	transferClient *nethttp.Client
	baseURL        string
	readLimiter    *ratelimit.RateLimiter
	writeLimiter   *ratelimit.RateLimiter
	cache          *ParamCache
	logger         *logging.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger       *logging.Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	cache        *ParamCache
}

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithRetry overrides the retry policy.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(o *clientOptions) {
		o.retryMax = max
		o.retryWaitMin = waitMin
		o.retryWaitMax = waitMax
	}
}

// WithCache shares a ParamCache between clients.
func WithCache(c *ParamCache) Option {
	return func(o *clientOptions) { o.cache = c }
}

// NewClient creates a new API client for cfg.Server.Address.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	o := clientOptions{
		retryMax:     constants.MaxRetries,
		retryWaitMin: constants.RetryInitialDelay,
		retryWaitMax: constants.RetryMaxDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger).Component("api")

	address := strings.TrimSuffix(strings.TrimSpace(cfg.Server.Address), "/")
	if address == "" {
		return nil, fmt.Errorf("server address is empty: set [server] address or VAULTLINK_ADDRESS")
	}
	if _, err := url.ParseRequestURI(address); err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", address, err)
	}

	apiHTTP, err := vhttp.ConfigureHTTPClient(cfg.Proxy, address, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	apiHTTP.Timeout = cfg.Server.Timeout
	if apiHTTP.Timeout <= 0 {
		apiHTTP.Timeout = constants.DefaultAPITimeout
	}

	transferHTTP, err := vhttp.NewTransferClient(cfg.Proxy, "", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}

	cache := o.cache
	if cache == nil {
		cache = NewParamCache(constants.SystemParamsTTL, constants.FileDetailTTL)
	}

	return &Client{
		apiClient:      wrapRetry(apiHTTP, o, logger),
		transferClient: wrapRetry(transferHTTP, o, logger),
		baseURL:        address,
		readLimiter:    ratelimit.NewReadLimiter(logger),
		writeLimiter:   ratelimit.NewTransferLimiter(logger),
		cache:          cache,
		logger:         logger,
	}, nil
}

func wrapRetry(c *nethttp.Client, o clientOptions, logger *logging.Logger) *nethttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = c
	retryClient.RetryMax = o.retryMax
	retryClient.RetryWaitMin = o.retryWaitMin
	retryClient.RetryWaitMax = o.retryWaitMax
	retryClient.CheckRetry = vhttp.CheckRetry
	retryClient.Backoff = vhttp.Backoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = retryLogger{logger: logger}
	return retryClient.StandardClient()
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Cache returns the metadata cache.
func (c *Client) Cache() *ParamCache {
	return c.cache
}

// doRequest performs a JSON request and decodes the response envelope's
// data into out (which may be nil).
func (c *Client) doRequest(ctx context.Context, op, method, path string, body, out interface{}) error {
	limiter, httpClient := c.readLimiter, c.apiClient
	if method != nethttp.MethodGet {
		limiter = c.writeLimiter
	}
	if path == "/file/upload" || path == "/file/download" {
		httpClient = c.transferClient
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter cancelled: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	return decodeEnvelope(op, resp, out)
}

func decodeEnvelope(op string, resp *nethttp.Response, out interface{}) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	var env models.Envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil || env.Status == "" {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{Op: op, StatusCode: resp.StatusCode, Message: excerpt(raw)}
		}
		return fmt.Errorf("%s: malformed response: %s", op, excerpt(raw))
	}

	if !env.OK() {
		msg := env.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Code: env.ErrorCode, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: excerpt(raw)}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], env.Data...)
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", op, err)
	}
	return nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// ListFiles returns every file record owned by owner.
func (c *Client) ListFiles(ctx context.Context, owner string) ([]models.FileRecord, error) {
	var data models.FileListData
	path := "/file/list?username=" + url.QueryEscape(owner)
	if err := c.doRequest(ctx, "list files", nethttp.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	if data.FilesInfo == nil {
		return []models.FileRecord{}, nil
	}
	return data.FilesInfo, nil
}

// DeleteFile removes fileID from owner's storage.
func (c *Client) DeleteFile(ctx context.Context, owner, fileID string) error {
	body := models.DeleteRequest{Username: owner, FileUUID: fileID}
	if err := c.doRequest(ctx, "delete file", nethttp.MethodPost, "/file/delete", body, nil); err != nil {
		return err
	}
	c.cache.Forget(fileID)
	return nil
}

// SystemParameters returns the public system parameters needed to seal
// uploads and open downloads. The result is cached.
func (c *Client) SystemParameters(ctx context.Context) (json.RawMessage, error) {
	if p, ok := c.cache.SystemParams(); ok {
		return p, nil
	}
	var params json.RawMessage
	if err := c.doRequest(ctx, "get system parameters", nethttp.MethodGet, "/system/parameters", nil, &params); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("get system parameters: empty response")
	}
	c.cache.SetSystemParams(params)
	return params, nil
}

// UploadFile stores a sealed file and returns its id.
func (c *Client) UploadFile(ctx context.Context, req models.UploadRequest) (string, error) {
	var result models.UploadResult
	if err := c.doRequest(ctx, "upload file", nethttp.MethodPost, "/file/upload", req, &result); err != nil {
		return "", err
	}
	if result.FileUUID == "" {
		return "", fmt.Errorf("upload file: server returned no file id")
	}
	return result.FileUUID, nil
}

// FileDetail returns the stored ciphertext and metadata of a file.
func (c *Client) FileDetail(ctx context.Context, fileID string) (*models.FileDetail, error) {
	if d, ok := c.cache.Detail(fileID); ok {
		return d, nil
	}
	var detail models.FileDetail
	path := "/file/detail?file_uuid=" + url.QueryEscape(fileID)
	if err := c.doRequest(ctx, "get file detail", nethttp.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = fileID
	}
	c.cache.SetDetail(&detail)
	return &detail, nil
}

// RequestDownload asks the server for the key shares of fileID. The server
// counts this as a download.
func (c *Client) RequestDownload(ctx context.Context, fileID, user string) (*models.DownloadGrant, error) {
	var grant models.DownloadGrant
	body := models.DownloadRequest{FileUUID: fileID, DownloadUser: user}
	if err := c.doRequest(ctx, "request download", nethttp.MethodPost, "/file/download", body, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}
