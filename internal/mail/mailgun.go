package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailgun sends through the messages endpoint of one sending domain.
type Mailgun struct {
	baseURL string
	domain  string
	apiKey  string
	from    string
	http    *http.Client
}

func NewMailgun(cfg config.MailConfig, hc *http.Client) *Mailgun {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Mailgun{
		baseURL: strings.TrimRight(cfg.MailgunBaseURL, "/"),
		domain:  cfg.MailgunDomain,
		apiKey:  cfg.MailgunAPIKey,
		from:    cfg.From,
		http:    hc,
	}
}

func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	form := url.Values{
		"from":    {m.from},
		"to":      {msg.To},
		"subject": {msg.Subject},
		"text":    {msg.Text},
	}
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, url.PathEscape(m.domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailgun: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	log.WithFields(log.Fields{"to": momo.MaskEmail(msg.To), "id": out.ID}).Info("[MAIL] Message queued")
	return nil
}
