package mail

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
	"github.com/hoardrun1/hoardrun-sub005/internal/queue"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
)

var receiptTmpl = template.Must(template.New("receipt").Parse(`Hello,

Your mobile money payment {{.Verb}}.

  Reference: {{.ID}}
  Amount:    {{.Amount}} {{.Currency}}
  Status:    {{.Status}}{{if .Reason}}
  Reason:    {{.Reason}}{{end}}
  Date:      {{.Date}}

If you did not make this payment, contact support right away.
`))

// Receipt renders the notification sent when a payment settles.
func Receipt(to string, e queue.Event) (Message, error) {
	verb := "went through"
	if e.Status != store.StatusSuccessful {
		verb = "did not go through"
	}
	var buf bytes.Buffer
	err := receiptTmpl.Execute(&buf, map[string]string{
		"Verb":     verb,
		"ID":       e.TransactionID,
		"Amount":   e.Amount.StringFixed(2),
		"Currency": e.Currency,
		"Status":   e.Status,
		"Reason":   strings.ReplaceAll(e.Reason, "_", " "),
		"Date":     e.OccurredAt.UTC().Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Payment " + strings.ToLower(e.Status) + ": " + e.Amount.StringFixed(2) + " " + e.Currency,
		Text:    buf.String(),
	}, nil
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// ReceiptHandler mails a receipt for every settled transaction. Other event
// types and users without an email address are skipped.
func ReceiptHandler(users UserLookup, s Sender) queue.Handler {
	return func(ctx context.Context, e queue.Event) error {
		if e.Type != queue.EventSettled {
			return nil
		}
		u, err := users.GetUser(ctx, e.UserID)
		if err != nil {
			return fmt.Errorf("load user %s: %w", e.UserID, err)
		}
		if u.Email == "" {
			log.WithField("user_id", u.ID).Debug("[MAIL] No email on file, skipping receipt")
			return nil
		}
		msg, err := Receipt(u.Email, e)
		if err != nil {
			return err
		}
		if err := s.Send(ctx, msg); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"transaction_id": e.TransactionID,
			"to":             momo.MaskEmail(u.Email),
		}).Info("[MAIL] Receipt sent")
		return nil
	}
}
