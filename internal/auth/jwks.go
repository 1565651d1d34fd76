package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrUnknownKey = errors.New("auth: unknown signing key")

// missCooldown bounds refetches triggered by unknown key ids.
const missCooldown = time.Minute

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet caches the RSA keys published at a JWKS URL.
type KeySet struct {
	url     string
	http    *http.Client
	refresh time.Duration
	now     func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	lastMiss  time.Time
}

func NewKeySet(url string, hc *http.Client, refresh time.Duration) *KeySet {
	return &KeySet{url: url, http: hc, refresh: refresh, now: time.Now, keys: map[string]*rsa.PublicKey{}}
}

// Key returns the key for kid. The set is refetched when it is older than
// the refresh interval, or when kid is unknown and no refetch for a miss
// happened within the last minute.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if k.fetchedAt.IsZero() || now.Sub(k.fetchedAt) > k.refresh {
		if err := k.fetch(ctx); err != nil && len(k.keys) == 0 {
			return nil, err
		}
	}
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}

	if now.Sub(k.lastMiss) < missCooldown {
		return nil, ErrUnknownKey
	}
	k.lastMiss = now
	if err := k.fetch(ctx); err != nil {
		return nil, err
	}
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

func (k *KeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.rsaKey()
		if err != nil {
			log.WithError(err).WithField("kid", jwk.Kid).Warn("[AUTH] Skipping malformed JWK")
			continue
		}
		keys[jwk.Kid] = pub
	}
	k.keys = keys
	k.fetchedAt = k.now()
	log.WithFields(log.Fields{"url": k.url, "keys": len(keys)}).Debug("[AUTH] JWKS refreshed")
	return nil
}

func (j jsonWebKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 || exp.Sign() <= 0 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
