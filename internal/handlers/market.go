package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hoardrun1/hoardrun-sub005/internal/httputil"
	"github.com/hoardrun1/hoardrun-sub005/internal/market"
	"github.com/hoardrun1/hoardrun-sub005/internal/validate"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

func QuoteHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := symbolQuery{Symbol: mux.Vars(r)["symbol"], Points: 1}
		if err := d.Validator.Struct(in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		q, err := d.Market.Quote(r.Context(), in.Symbol)
		if err != nil {
			httputil.WriteError(w, r, marketError(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, q)
	}
}

func ExchangeRateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		in := fxQuery{From: q.Get("from"), To: q.Get("to")}
		if err := d.Validator.Struct(in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		rate, err := d.Market.ExchangeRate(r.Context(), in.From, in.To)
		if err != nil {
			httputil.WriteError(w, r, marketError(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rate)
	}
}

func DailyHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		points, err := intParam(r.URL.Query().Get("points"), "points", 30)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		in := symbolQuery{Symbol: mux.Vars(r)["symbol"], Points: points}
		if err := d.Validator.Struct(in); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		series, err := d.Market.Daily(r.Context(), in.Symbol, in.Points)
		if err != nil {
			httputil.WriteError(w, r, marketError(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"symbol": strings.ToUpper(in.Symbol), "points": series})
	}
}

func marketError(err error) error {
	switch {
	case errors.Is(err, market.ErrThrottled):
		return apperr.Unavailable("market data provider is rate limiting, try again shortly")
	case errors.Is(err, market.ErrBadSymbol):
		return apperr.NotFound("unknown symbol")
	}
	return apperr.Upstream("market data provider unavailable", err)
}

// intParam parses an optional integer query parameter.
func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.BadRequest(apperr.CodeValidation, "request validation failed").WithDetails([]validate.FieldError{
			{Field: name, Rule: "number", Message: name + " must be a whole number"},
		})
	}
	return n, nil
}
