package validate

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

type payment struct {
	Amount   decimal.Decimal `json:"amount" validate:"required,gt=0,cents,maxamount"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
	Phone    string          `json:"phone" validate:"required,msisdn"`
	PIN      string          `json:"pin" validate:"required,pin"`
}

func bind(t *testing.T, body string) (payment, error) {
	t.Helper()
	var p payment
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	return p, New().Bind(req, &p)
}

func details(t *testing.T, err error) []FieldError {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeValidation, e.Code)
	assert.Equal(t, 400, e.HTTPStatus())
	d, ok := e.Details.([]FieldError)
	require.True(t, ok)
	return d
}

func TestBindValid(t *testing.T) {
	p, err := bind(t, `{"amount":"12.50","currency":"EUR","phone":"+256 77 123 4567","pin":"1234"}`)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("12.5")))
}

func TestBindReportsEveryField(t *testing.T) {
	_, err := bind(t, `{"amount":0,"currency":"XYZ","phone":"abc","pin":"12"}`)
	d := details(t, err)

	byField := map[string]FieldError{}
	for _, fe := range d {
		byField[fe.Field] = fe
	}
	assert.Equal(t, "required", byField["amount"].Rule)
	assert.Equal(t, "iso4217", byField["currency"].Rule)
	assert.Equal(t, "msisdn", byField["phone"].Rule)
	assert.Equal(t, "pin", byField["pin"].Rule)
	assert.Equal(t, "pin must be 4 to 6 digits", byField["pin"].Message)
}

func TestBindAmountRules(t *testing.T) {
	_, err := bind(t, `{"amount":"-5","phone":"+46733123450","pin":"1234"}`)
	d := details(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, FieldError{Field: "amount", Rule: "gt", Message: "amount must be greater than 0"}, d[0])

	_, err = bind(t, `{"amount":"1.005","phone":"+46733123450","pin":"1234"}`)
	d = details(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, "cents", d[0].Rule)
}

func TestBindAmountPrecisionAndRange(t *testing.T) {
	cases := []struct {
		amount string
		rule   string
	}{
		{`"10.5"`, ""},
		{`"12.340"`, ""},
		{`"0.01"`, ""},
		{`"9999999999999999.99"`, ""},
		{`"0.000000001"`, "cents"},
		{`0.000000001`, "cents"},
		{`"12.345"`, "cents"},
		{`"0.1000000000000000055511151231257827"`, "cents"},
		{`"10000000000000000"`, "maxamount"},
		{`"1e20"`, "maxamount"},
		{`1e300`, "maxamount"},
	}
	for _, tc := range cases {
		_, err := bind(t, `{"amount":`+tc.amount+`,"phone":"+46733123450","pin":"1234"}`)
		if tc.rule == "" {
			assert.NoError(t, err, tc.amount)
			continue
		}
		d := details(t, err)
		require.Len(t, d, 1, tc.amount)
		assert.Equal(t, "amount", d[0].Field, tc.amount)
		assert.Equal(t, tc.rule, d[0].Rule, tc.amount)
	}
}

func TestBindBadJSON(t *testing.T) {
	for _, body := range []string{``, `{`, `{"amount":"1","extra":true}`, `{"pin":1234}`, `{} {}`} {
		_, err := bind(t, body)
		e, ok := apperr.As(err)
		require.True(t, ok, body)
		assert.Equal(t, apperr.CodeBadJSON, e.Code, body)
	}
}
