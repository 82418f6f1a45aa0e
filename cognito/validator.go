package cognito

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
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

const maxCachedKeys = 16

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// CognitoValidator validates ID tokens issued by a Cognito user pool.
// Signing keys are cached by kid and expire after the configured TTL; an
// unknown kid triggers one JWKS fetch so rotated keys are picked up.
type CognitoValidator struct {
	issuer       string
	clientID     string
	jwksURL      string
	httpClient   *http.Client
	fetchRetries uint64
	parser       *jwt.Parser

	keys *expirable.LRU[string, *rsa.PublicKey]
	// fetchMu allows one JWKS fetch at a time
	fetchMu sync.Mutex
}

// Config holds configuration for CognitoValidator
type Config struct {
	Region       string
	UserPoolID   string
	ClientID     string
	CacheTTL     time.Duration
	HTTPTimeout  time.Duration
	FetchRetries uint64
}

// Issuer returns the token issuer for the user pool
func (c Config) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// NewCognitoValidator creates a new Cognito JWT validator
func NewCognitoValidator(config Config) *CognitoValidator {
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}

	return newValidator(config.Issuer(), config.ClientID, config.Issuer()+"/.well-known/jwks.json",
		&http.Client{Timeout: config.HTTPTimeout}, config.CacheTTL, config.FetchRetries)
}

func newValidator(issuer, clientID, jwksURL string, client *http.Client, ttl time.Duration, retries uint64) *CognitoValidator {
	return &CognitoValidator{
		issuer:       issuer,
		clientID:     clientID,
		jwksURL:      jwksURL,
		httpClient:   client,
		fetchRetries: retries,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(clientID),
			jwt.WithExpirationRequired(),
		),
		keys: expirable.NewLRU[string, *rsa.PublicKey](maxCachedKeys, nil, ttl),
	}
}

// ValidateToken validates an ID token and returns its parsed claims
func (v *CognitoValidator) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: expected %s", ErrInvalidIssuer, v.issuer)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidAudience
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// Access tokens carry no custom attributes, so only ID tokens can open a session
	if claims.TokenUse != "id" {
		return nil, fmt.Errorf("%w: token_use %q", ErrInvalidToken, claims.TokenUse)
	}

	return ExtractClaimsFromValidatedToken(token)
}

// FetchJWKS downloads the key set. Network errors and 5xx responses are
// retried with exponential backoff.
func (v *CognitoValidator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	var jwks JWKS
	backoff := retry.WithMaxRetries(v.fetchRetries, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
			return fmt.Errorf("failed to decode JWKS: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &jwks, nil
}

// getPublicKey returns the cached key for kid, fetching the JWKS on a miss
func (v *CognitoValidator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := v.keys.Get(kid); ok {
		return key, nil
	}

	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	// another caller may have fetched while we waited
	if key, ok := v.keys.Get(kid); ok {
		return key, nil
	}

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	var found *rsa.PublicKey
	for i := range jwks.Keys {
		jwk := &jwks.Keys[i]
		if jwk.Kty != "" && jwk.Kty != "RSA" {
			continue
		}
		key, err := v.jwkToRSAPublicKey(jwk)
		if err != nil {
			return nil, fmt.Errorf("failed to convert JWK %s: %w", jwk.Kid, err)
		}
		v.keys.Add(jwk.Kid, key)
		if jwk.Kid == kid {
			found = key
		}
	}

	if found == nil {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}
	return found, nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func (v *CognitoValidator) jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// InvalidateCache drops every cached signing key
func (v *CognitoValidator) InvalidateCache() {
	v.keys.Purge()
}
