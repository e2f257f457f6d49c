package store

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	DefaultJWTIssuer   = "gamelog-auth"
	DefaultJWTAudience = "gamelog-api"
	defaultJWTKeyID    = "gamelog-active"
	defaultJWTLeeway   = 30 * time.Second
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionRevoked = errors.New("session revoked")
)

// JWTOptions configures JWT claim validation behavior.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// SessionKeys holds the active signing key and every key accepted for
// verification, indexed by kid.
type SessionKeys struct {
	Signer   *rsa.PrivateKey
	SignerID string
	Verify   map[string]*rsa.PublicKey
}

// LoadSessionKeys reads PEM files. extraVerify maps kid to the public key
// path of a retired signing key that must still validate.
func LoadSessionKeys(privateKeyPath, publicKeyPath, keyID string, extraVerify map[string]string) (SessionKeys, error) {
	signer, err := loadRSAPrivateKey(privateKeyPath)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("load jwt private key: %w", err)
	}
	keys := SessionKeys{Signer: signer, SignerID: keyID, Verify: map[string]*rsa.PublicKey{}}
	if strings.TrimSpace(keys.SignerID) == "" {
		keys.SignerID = defaultJWTKeyID
	}
	active := &signer.PublicKey
	if strings.TrimSpace(publicKeyPath) != "" {
		if active, err = loadRSAPublicKey(publicKeyPath); err != nil {
			return SessionKeys{}, fmt.Errorf("load jwt public key: %w", err)
		}
	}
	keys.Verify[keys.SignerID] = active
	for kid, path := range extraVerify {
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadRSAPublicKey(path)
		if err != nil {
			return SessionKeys{}, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		keys.Verify[kid] = pub
	}
	return keys, nil
}

// IssuedSession is a signed access token and its expiry.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

// JWTSessionStore issues RS256 access tokens and checks them against the
// revocation list.
type JWTSessionStore struct {
	keys    SessionKeys
	ttl     time.Duration
	revoker TokenRevoker
	opts    JWTOptions
	now     func() time.Time
}

func NewJWTSessionStore(keys SessionKeys, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if keys.Signer == nil {
		return nil, errors.New("jwt signing key required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if strings.TrimSpace(keys.SignerID) == "" {
		keys.SignerID = defaultJWTKeyID
	}
	if keys.Verify == nil {
		keys.Verify = map[string]*rsa.PublicKey{}
	}
	if _, ok := keys.Verify[keys.SignerID]; !ok {
		keys.Verify[keys.SignerID] = &keys.Signer.PublicKey
	}
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = DefaultJWTIssuer
	}
	if opts.Audience == "" {
		opts.Audience = DefaultJWTAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	return &JWTSessionStore{keys: keys, ttl: ttl, revoker: revoker, opts: opts, now: time.Now}, nil
}

// Issue signs a token for the user.
func (s *JWTSessionStore) Issue(userID string) (IssuedSession, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.opts.Issuer,
		Audience:  jwt.ClaimStrings{s.opts.Audience},
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        randomHexID(12),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keys.SignerID
	signed, err := token.SignedString(s.keys.Signer)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("sign session: %w", err)
	}
	return IssuedSession{Token: signed, ExpiresAt: expires}, nil
}

// Validate returns the subject of a valid, unrevoked token.
func (s *JWTSessionStore) Validate(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return "", fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return "", ErrSessionRevoked
		}
	}
	return claims.Subject, nil
}

// Revoke blocks the token until it would have expired. Invalid tokens are
// ignored.
func (s *JWTSessionStore) Revoke(ctx context.Context, token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(s.now()))
}

// JWKS publishes every verification key, sorted by kid.
func (s *JWTSessionStore) JWKS() []JWK {
	kids := make([]string, 0, len(s.keys.Verify))
	for kid := range s.keys.Verify {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := s.keys.Verify[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: jwt.SigningMethodRS256.Alg(),
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (s *JWTSessionStore) parse(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidSession
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := s.keys.Verify[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.opts.Leeway),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithAudience(s.opts.Audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return claims, ErrInvalidSession
	}
	return claims, nil
}

func readPEMBlock(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return block, nil
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return key, nil
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := parsed.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("public key is not rsa")
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("certificate public key is not rsa")
	}
	return nil, errors.New("failed to parse rsa public key")
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
