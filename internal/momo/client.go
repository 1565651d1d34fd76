package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

var (
	ErrNotFound = errors.New("momo: request not found")
	ErrRejected = errors.New("momo: request rejected")
)

const (
	maxAttempts  = 3
	tokenLeeway  = 60 * time.Second
	subscription = "Ocp-Apim-Subscription-Key"
)

// HTTPError carries a non-success provider response.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("momo %s: status %d: %s", e.Op, e.Status, e.Body)
}

type Client struct {
	cfg     config.MomoConfig
	http    *http.Client
	backoff time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func New(cfg config.MomoConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		backoff: 500 * time.Millisecond,
		now:     time.Now,
	}
}

// Token returns a cached collection access token, fetching a new one when
// the cached token is within a minute of expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/collection/token/", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey)
	req.Header.Set(subscription, c.cfg.SubscriptionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		m.IncProviderCall("token", "ERROR")
		return "", fmt.Errorf("momo token: %w", err)
	}
	defer resp.Body.Close()
	m.IncProviderCall("token", statusLabel(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{Op: "token", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("momo token: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("momo token: empty access_token")
	}

	c.token = tr.AccessToken
	c.expires = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenLeeway)
	log.WithField("expires_in", tr.ExpiresIn).Debug("[MOMO] Access token refreshed")
	return c.token, nil
}

// RequestToPay asks the payer to approve a collection. The provider answers
// 202 and settles asynchronously. Transport errors and 5xx responses are
// retried with the same reference id, and a 401 is retried once with a new
// token. A 409 means an earlier attempt already created the request, so it
// counts as accepted. Other 4xx responses wrap ErrRejected.
func (c *Client) RequestToPay(ctx context.Context, pr PaymentRequest) error {
	body, err := json.Marshal(requestToPayBody{
		Amount:       pr.Amount.StringFixed(2),
		Currency:     pr.Currency,
		ExternalID:   pr.ExternalID,
		Payer:        Party{PartyIDType: "MSISDN", PartyID: NormalizeMSISDN(pr.Phone)},
		PayerMessage: pr.PayerMessage,
		PayeeNote:    pr.PayeeNote,
	})
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{
		"reference_id": pr.ReferenceID,
		"external_id":  pr.ExternalID,
		"payer":        MaskPhone(pr.Phone),
		"amount":       pr.Amount.StringFixed(2),
	})

	var lastErr error
	reauthed := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, err := c.requestToPayOnce(ctx, pr.ReferenceID, body)
		if err == nil {
			logger.Info("[MOMO] Request to pay accepted")
			return nil
		}
		lastErr = err
		if isStatus(err, http.StatusUnauthorized) {
			// one fresh token; a second 401 means bad credentials
			retry = retry && !reauthed
			reauthed = true
		}
		if !retry {
			break
		}
		logger.WithError(err).Warnf("[MOMO] Request to pay attempt %d/%d failed", attempt, maxAttempts)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}
	logger.WithError(lastErr).Error("[MOMO] Request to pay failed")
	return lastErr
}

func (c *Client) requestToPayOnce(ctx context.Context, ref string, body []byte) (retry bool, err error) {
	token, err := c.Token(ctx)
	if err != nil {
		return true, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/collection/v1_0/requesttopay", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	c.decorate(req, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reference-Id", ref)
	if c.cfg.CallbackURL != "" {
		req.Header.Set("X-Callback-Url", c.cfg.CallbackURL)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		m.IncProviderCall("request_to_pay", "ERROR")
		return true, fmt.Errorf("momo request to pay: %w", err)
	}
	defer resp.Body.Close()
	m.IncProviderCall("request_to_pay", statusLabel(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return false, nil
	case resp.StatusCode == http.StatusConflict:
		log.WithFields(log.Fields{"reference_id": ref, "body": readSnippet(resp.Body)}).
			Warn("[MOMO] Reference id already known, treating request to pay as accepted")
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateToken()
		return true, &HTTPError{Op: "request to pay", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	case resp.StatusCode >= 500:
		return true, &HTTPError{Op: "request to pay", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	default:
		return false, fmt.Errorf("%w: %w", ErrRejected,
			&HTTPError{Op: "request to pay", Status: resp.StatusCode, Body: readSnippet(resp.Body)})
	}
}

// Status reads the provider's view of a request to pay.
func (c *Client) Status(ctx context.Context, referenceID string) (*PaymentStatus, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/collection/v1_0/requesttopay/"+url.PathEscape(referenceID), nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		m.IncProviderCall("status", "ERROR")
		return nil, fmt.Errorf("momo status: %w", err)
	}
	defer resp.Body.Close()
	m.IncProviderCall("status", statusLabel(resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusUnauthorized:
		c.invalidateToken()
		fallthrough
	default:
		return nil, &HTTPError{Op: "status", Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	var ps PaymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&ps); err != nil {
		return nil, fmt.Errorf("momo status: decode: %w", err)
	}
	ps.Status = strings.ToUpper(ps.Status)
	return &ps, nil
}

func (c *Client) decorate(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(subscription, c.cfg.SubscriptionKey)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func isStatus(err error, code int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == code
}

func statusLabel(code int) string {
	if code >= 200 && code < 400 {
		return "SUCCESS"
	}
	return "FAILED"
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
