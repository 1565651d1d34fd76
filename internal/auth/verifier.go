package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
)

const (
	ProviderCognito  = "cognito"
	ProviderFirebase = "firebase"

	firebaseJWKS = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

var (
	ErrUnknownIssuer = errors.New("auth: unknown issuer")
	ErrWrongAudience = errors.New("auth: token not issued for this client")
)

// Principal is the identity proven by a verified token.
type Principal struct {
	Provider string
	Subject  string
	Email    string
}

// Claims covers the Cognito and Firebase ID/access token fields we read.
type Claims struct {
	Email    string `json:"email,omitempty"`
	TokenUse string `json:"token_use,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

type issuer struct {
	provider string
	iss      string
	audience string
	keys     *KeySet
}

type Verifier struct {
	issuers map[string]*issuer
	leeway  time.Duration
}

func CognitoIssuer(region, poolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, poolID)
}

func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// NewVerifier registers every configured identity provider.
func NewVerifier(cfg config.AuthConfig, hc *http.Client) *Verifier {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	v := &Verifier{issuers: map[string]*issuer{}, leeway: 30 * time.Second}

	if cfg.Cognito.Enabled() {
		iss := CognitoIssuer(cfg.Cognito.Region, cfg.Cognito.UserPoolID)
		url := cfg.Cognito.JWKSURL
		if url == "" {
			url = iss + "/.well-known/jwks.json"
		}
		v.issuers[iss] = &issuer{
			provider: ProviderCognito,
			iss:      iss,
			audience: cfg.Cognito.ClientID,
			keys:     NewKeySet(url, hc, cfg.JWKSRefresh),
		}
	}
	if cfg.Firebase.Enabled() {
		iss := FirebaseIssuer(cfg.Firebase.ProjectID)
		url := cfg.Firebase.JWKSURL
		if url == "" {
			url = firebaseJWKS
		}
		v.issuers[iss] = &issuer{
			provider: ProviderFirebase,
			iss:      iss,
			audience: cfg.Firebase.ProjectID,
			keys:     NewKeySet(url, hc, cfg.JWKSRefresh),
		}
	}
	return v
}

// Verify checks an RS256 token against the issuer named in its iss claim.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	var peek Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &peek); err != nil {
		return nil, err
	}
	is, ok := v.issuers[peek.Issuer]
	if !ok {
		return nil, ErrUnknownIssuer
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(is.iss),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if is.provider == ProviderFirebase {
		opts = append(opts, jwt.WithAudience(is.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return is.keys.Key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	if is.provider == ProviderCognito {
		if err := checkCognito(&claims, is.audience); err != nil {
			return nil, err
		}
	}
	return &Principal{Provider: is.provider, Subject: claims.Subject, Email: claims.Email}, nil
}

// Cognito ID tokens carry the app client in aud, access tokens in client_id.
func checkCognito(c *Claims, clientID string) error {
	switch c.TokenUse {
	case "id":
		if clientID == "" {
			return nil
		}
		for _, aud := range c.Audience {
			if aud == clientID {
				return nil
			}
		}
		return ErrWrongAudience
	case "access":
		if clientID != "" && c.ClientID != clientID {
			return ErrWrongAudience
		}
		return nil
	}
	return fmt.Errorf("auth: unsupported token_use %q", c.TokenUse)
}
