package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
)

var ErrContactRejected = errors.New("web3forms: submission rejected")

type ContactForm struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Subject string `json:"subject" validate:"omitempty,max=150"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

type ContactSubmitter interface {
	Submit(ctx context.Context, f ContactForm) error
}

// Web3Forms forwards contact form submissions to the site owner's inbox.
type Web3Forms struct {
	url       string
	accessKey string
	subject   string
	http      *http.Client
}

func NewWeb3Forms(cfg config.MailConfig, hc *http.Client) *Web3Forms {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Web3Forms{url: cfg.Web3FormsURL, accessKey: cfg.Web3FormsKey, subject: cfg.ContactSubject, http: hc}
}

func (w *Web3Forms) Submit(ctx context.Context, f ContactForm) error {
	subject := f.Subject
	if subject == "" {
		subject = w.subject
	}
	body, err := json.Marshal(map[string]string{
		"access_key": w.accessKey,
		"name":       f.Name,
		"email":      f.Email,
		"subject":    subject,
		"message":    f.Message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("web3forms: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("web3forms: status %d: decode: %w", resp.StatusCode, err)
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrContactRejected, out.Message)
	}
	log.WithField("from", momo.MaskEmail(f.Email)).Info("[MAIL] Contact form forwarded")
	return nil
}
