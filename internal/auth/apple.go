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

	"github.com/golang-jwt/jwt/v5"
)

const (
	AppleIssuer  = "https://appleid.apple.com"
	AppleKeysURL = AppleIssuer + "/auth/keys"

	appleKeysTTL = 24 * time.Hour
	// minRefetch bounds how often an unknown kid can trigger a key fetch.
	minRefetch = time.Minute
)

var (
	ErrNotConfigured = errors.New("apple sign-in is not configured")
	// ErrKeysUnavailable means Apple's signing keys could not be fetched.
	ErrKeysUnavailable = errors.New("apple signing keys unavailable")
)

// AppleVerifier checks identity tokens against Apple's published keys.
type AppleVerifier struct {
	clientID string
	keysURL  string
	client   *http.Client
	now      func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

type AppleOption func(*AppleVerifier)

func WithKeysURL(url string) AppleOption {
	return func(v *AppleVerifier) { v.keysURL = url }
}

func WithHTTPClient(c *http.Client) AppleOption {
	return func(v *AppleVerifier) { v.client = c }
}

func NewAppleVerifier(clientID string, opts ...AppleOption) *AppleVerifier {
	v := &AppleVerifier{
		clientID: clientID,
		keysURL:  AppleKeysURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the token and requires its subject to be appleUserID.
func (v *AppleVerifier) Verify(ctx context.Context, identityToken, appleUserID string) error {
	if v.clientID == "" {
		return ErrNotConfigured
	}

	token, err := jwt.Parse(identityToken,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid in token header")
			}
			return v.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(AppleIssuer),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if errors.Is(err, ErrKeysUnavailable) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: invalid Apple identity token: %w", ErrAuthFailed, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return fmt.Errorf("%w: Apple token has no subject", ErrAuthFailed)
	}
	if sub != appleUserID {
		return fmt.Errorf("%w: Apple user ID mismatch", ErrAuthFailed)
	}
	return nil
}

func (v *AppleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	age := v.now().Sub(v.fetched)
	if k, ok := v.keys[kid]; ok && age < appleKeysTTL {
		return k, nil
	}
	if v.keys == nil || age >= minRefetch {
		keys, err := v.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeysUnavailable, err)
		}
		v.keys = keys
		v.fetched = v.now()
	}
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

type jwks struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *AppleVerifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.keysURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching Apple keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching Apple keys: status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding Apple keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, errN := base64.RawURLEncoding.DecodeString(k.N)
		e, errE := base64.RawURLEncoding.DecodeString(k.E)
		if errN != nil || errE != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	return keys, nil
}
