package handlers

import (
	"net/http"

	"github.com/hoardrun1/hoardrun-sub005/internal/httputil"
	"github.com/hoardrun1/hoardrun-sub005/internal/mail"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

func ContactHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in mail.ContactForm
		if err := d.Validator.Bind(r, &in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if err := d.Contact.Submit(r.Context(), in); err != nil {
			httputil.WriteError(w, r, apperr.Upstream("could not deliver message", err))
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	}
}
