package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/moncash"
)

const (
	tokenPath          = "/oauth/token"
	retrieveTxPath     = "/v1/RetrieveTransactionPayment"
	tokenRequestBody   = "scope=read,write&grant_type=client_credentials"
	tokenExpiryLeeway  = 10 * time.Second
	defaultCallTimeout = 5 * time.Second
	maxResponseBody    = 1 << 20
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Timeout bounds each outbound call; there are no retries.
	Timeout    time.Duration
	CacheToken bool
	HTTPClient *http.Client
}

// Client talks to the MonCash button API. Without CacheToken every lookup
// performs its own token exchange.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	timeout      time.Duration
	cacheToken   bool
	httpClient   *http.Client
	logger       *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		timeout:      timeout,
		cacheToken:   config.CacheToken,
		httpClient:   httpClient,
		logger:       logger,
		now:          time.Now,
	}
}

// FetchTransaction obtains a token and looks transactionID up.
func (c *Client) FetchTransaction(ctx context.Context, transactionID string) (*moncash.Transaction, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(moncash.RetrieveTransactionRequest{TransactionID: transactionID})
	if err != nil {
		return nil, errors.NewInternalError("failed to encode lookup request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+retrieveTxPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ErrUpstreamDown.WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("moncash lookup request failed", "transaction_id", transactionID, "error", err)
		return nil, errors.ErrUpstreamDown.WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.ErrUpstreamDown.WithCause(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn("moncash transaction not found", "transaction_id", transactionID)
		return nil, errors.ErrTxNotFound.WithDetails(rawDetails(raw))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		c.logger.Error("moncash lookup returned error status", "transaction_id", transactionID, "status_code", resp.StatusCode)
		return nil, errors.ErrUpstreamDown.WithCause(fmt.Errorf("lookup returned status %d", resp.StatusCode))
	}

	var lookup moncash.RetrieveTransactionResponse
	if err := json.Unmarshal(raw, &lookup); err != nil {
		c.logger.Warn("moncash lookup body is not JSON", "transaction_id", transactionID, "error", err)
		return nil, errors.ErrTxNotFound.WithDetails(rawDetails(raw))
	}

	trimmed := bytes.TrimSpace(lookup.Payment)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		c.logger.Warn("moncash lookup returned no payment", "transaction_id", transactionID)
		return nil, errors.ErrTxNotFound.WithDetails(rawDetails(raw))
	}

	var details moncash.PaymentDetails
	if err := json.Unmarshal(trimmed, &details); err != nil {
		return nil, errors.ErrUpstreamDown.WithCause(fmt.Errorf("decode payment: %w", err))
	}

	tx := &moncash.Transaction{
		TransactionID:    details.TransactionID.String(),
		ReferenceOrderID: strings.TrimSpace(details.Reference.String()),
		Amount:           details.Cost,
		Message:          details.Message,
		Payer:            details.Payer,
		Raw:              json.RawMessage(trimmed),
	}
	if tx.TransactionID == "" {
		tx.TransactionID = transactionID
	}

	c.logger.Info("moncash transaction retrieved",
		"transaction_id", tx.TransactionID,
		"reference", tx.ReferenceOrderID,
		"cost", tx.Amount.String(),
		"message", tx.Message)

	return tx, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cacheToken {
		c.mu.Lock()
		if c.token != "" && c.now().Before(c.expiresAt) {
			token := c.token
			c.mu.Unlock()
			return token, nil
		}
		c.mu.Unlock()
	}

	tokenResp, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	if c.cacheToken {
		if expiresAt, ok := c.tokenExpiry(tokenResp); ok {
			c.mu.Lock()
			c.token = tokenResp.AccessToken
			c.expiresAt = expiresAt
			c.mu.Unlock()
		}
	}
	return tokenResp.AccessToken, nil
}

func (c *Client) requestToken(ctx context.Context) (*moncash.TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(tokenRequestBody))
	if err != nil {
		return nil, errors.ErrUpstreamDown.WithCause(err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("moncash token request failed", "error", err)
		return nil, errors.ErrUpstreamDown.WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("moncash rejected client credentials", "status_code", resp.StatusCode)
		return nil, errors.ErrAuthFailed.WithCause(fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("moncash token endpoint returned error status", "status_code", resp.StatusCode)
		return nil, errors.ErrUpstreamDown.WithCause(fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var tokenResp moncash.TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&tokenResp); err != nil {
		return nil, errors.ErrAuthFailed.WithCause(fmt.Errorf("decode token response: %w", err))
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.ErrAuthFailed.WithCause(fmt.Errorf("token response has no access_token"))
	}
	return &tokenResp, nil
}

// tokenExpiry prefers expires_in and falls back to the JWT exp claim. The
// signature is not checked; MonCash is the only party that can verify it.
func (c *Client) tokenExpiry(tokenResp *moncash.TokenResponse) (time.Time, bool) {
	if tokenResp.ExpiresIn > 0 {
		return c.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenExpiryLeeway), true
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenResp.AccessToken, claims); err != nil {
		c.logger.Debug("moncash token is not a JWT, not caching", "error", err)
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Add(-tokenExpiryLeeway), true
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func rawDetails(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return nil
}
