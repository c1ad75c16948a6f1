package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microloan/backend/internal/domain/payment"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	currency       = "KES"
	// Paystack amounts are in subunits.
	subunitsPerUnit = 100
)

type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// NewClient builds a Paystack client. Webhooks are signed with the secret key
// unless a dedicated webhook secret is configured.
func NewClient(baseURL, secretKey, webhookSecret string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("missing PAYSTACK_SECRET_KEY")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if strings.TrimSpace(webhookSecret) == "" {
		webhookSecret = secretKey
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secretKey:     strings.TrimSpace(secretKey),
		webhookSecret: strings.TrimSpace(webhookSecret),
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeBody struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency"`
	Channels    []string          `json:"channels"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (c *Client) Initialize(ctx context.Context, req payment.InitializeRequest) (*payment.InitializeResponse, error) {
	body := initializeBody{
		Email:       req.Email,
		Amount:      req.Amount * subunitsPerUnit,
		Reference:   req.Reference,
		Currency:    currency,
		Channels:    []string{"mobile_money"},
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	return &payment.InitializeResponse{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (*payment.VerifyResponse, error) {
	var data struct {
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Reference       string `json:"reference"`
		GatewayResponse string `json:"gateway_response"`
	}
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	out := &payment.VerifyResponse{
		Success: data.Status == "success",
		Status:  data.Status,
		Message: data.GatewayResponse,
	}
	if out.Success {
		out.Amount = data.Amount / subunitsPerUnit
	}
	return out, nil
}

// ValidateSignature checks X-Paystack-Signature: hex HMAC-SHA512 of the raw
// body.
func (c *Client) ValidateSignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	_, _ = mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", payment.ErrGatewayTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", payment.ErrGatewayTimeout, err)
		}
		return fmt.Errorf("paystack %s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return err
		}
	}
	return nil
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack api error %d: %s", e.StatusCode, e.Message)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
