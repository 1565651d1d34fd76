package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	"github.com/hoardrun1/hoardrun-sub005/internal/queue"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
)

func init() {
	log.SetOutput(io.Discard)
}

func TestMailgunSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mg.example.com/messages", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "key-123", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Bank <no-reply@mg.example.com>", r.PostForm.Get("from"))
		assert.Equal(t, "ada@example.com", r.PostForm.Get("to"))
		assert.Equal(t, "Hi", r.PostForm.Get("subject"))
		assert.Empty(t, r.PostForm.Get("html"))
		_, _ = io.WriteString(w, `{"id":"<2026@mg.example.com>","message":"Queued. Thank you."}`)
	}))
	defer srv.Close()

	mg := NewMailgun(config.MailConfig{
		MailgunBaseURL: srv.URL + "/",
		MailgunDomain:  "mg.example.com",
		MailgunAPIKey:  "key-123",
		From:           "Bank <no-reply@mg.example.com>",
	}, srv.Client())

	require.NoError(t, mg.Send(context.Background(), Message{To: "ada@example.com", Subject: "Hi", Text: "Body"}))
}

func TestMailgunError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Forbidden")
	}))
	defer srv.Close()

	mg := NewMailgun(config.MailConfig{MailgunBaseURL: srv.URL, MailgunDomain: "d"}, srv.Client())
	err := mg.Send(context.Background(), Message{To: "a@b.c"})
	assert.ErrorContains(t, err, "status 401")
}

func TestWeb3FormsSubmit(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"message":"Email sent successfully!"}`)
	}))
	defer srv.Close()

	wf := NewWeb3Forms(config.MailConfig{Web3FormsURL: srv.URL, Web3FormsKey: "access", ContactSubject: "Contact"}, srv.Client())
	err := wf.Submit(context.Background(), ContactForm{Name: "Ada", Email: "ada@example.com", Message: "Hello there, bank."})
	require.NoError(t, err)
	assert.Equal(t, "access", got["access_key"])
	assert.Equal(t, "Contact", got["subject"])
	assert.Equal(t, "Ada", got["name"])
}

func TestWeb3FormsUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"message":"Invalid access key"}`)
	}))
	defer srv.Close()

	wf := NewWeb3Forms(config.MailConfig{Web3FormsURL: srv.URL}, srv.Client())
	err := wf.Submit(context.Background(), ContactForm{Name: "A", Email: "a@b.c", Message: "long enough text"})
	assert.ErrorIs(t, err, ErrContactRejected)
	assert.ErrorContains(t, err, "Invalid access key")
}

func TestReceipt(t *testing.T) {
	e := queue.Event{
		Type:          queue.EventSettled,
		TransactionID: "tx-1",
		Status:        store.StatusFailed,
		Amount:        decimal.RequireFromString("12.5"),
		Currency:      "EUR",
		Reason:        store.ReasonInsufficientFunds,
		OccurredAt:    time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
	}
	msg, err := Receipt("ada@example.com", e)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Payment failed: 12.50 EUR", msg.Subject)
	assert.Contains(t, msg.Text, "did not go through")
	assert.Contains(t, msg.Text, "Reason:    insufficient funds")
	assert.Contains(t, msg.Text, "2026-10-15 09:30 UTC")

	e.Status, e.Reason = store.StatusSuccessful, ""
	msg, err = Receipt("ada@example.com", e)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "went through")
	assert.NotContains(t, msg.Text, "Reason:")
}

type users map[string]*store.User

func (u users) GetUser(_ context.Context, id string) (*store.User, error) {
	if usr, ok := u[id]; ok {
		return usr, nil
	}
	return nil, store.ErrNotFound
}

type outbox struct {
	sent []Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func TestReceiptHandler(t *testing.T) {
	dir := users{
		"user-1": {ID: "user-1", Email: "ada@example.com"},
		"user-2": {ID: "user-2"},
	}
	box := &outbox{}
	h := ReceiptHandler(dir, box)
	ctx := context.Background()
	settled := queue.Event{Type: queue.EventSettled, UserID: "user-1", Status: store.StatusSuccessful, Amount: decimal.NewFromInt(5), Currency: "EUR"}

	require.NoError(t, h(ctx, settled))
	require.Len(t, box.sent, 1)
	assert.Equal(t, "ada@example.com", box.sent[0].To)
	assert.Equal(t, "Payment successful: 5.00 EUR", box.sent[0].Subject)

	created := settled
	created.Type = queue.EventCreated
	require.NoError(t, h(ctx, created))

	noEmail := settled
	noEmail.UserID = "user-2"
	require.NoError(t, h(ctx, noEmail))
	assert.Len(t, box.sent, 1)

	unknown := settled
	unknown.UserID = "ghost"
	assert.ErrorIs(t, h(ctx, unknown), store.ErrNotFound)

	box.err = errors.New("mailgun down")
	assert.EqualError(t, h(ctx, settled), "mailgun down")
}
