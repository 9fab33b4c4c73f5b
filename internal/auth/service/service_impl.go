package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Claims is the JWT payload for bearer tokens.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	signingKey []byte
	issuer     string
	defaultTTL time.Duration
}

func New(p Params) (authdomain.TokenService, error) {
	log := p.Log.Named("auth.token")
	secret := p.Config.Auth.JWTSecret
	if secret == "" {
		if p.Config.IsProduction() {
			return nil, authdomain.ErrMissingSecret
		}
		generated, err := GenerateSigningKey()
		if err != nil {
			return nil, err
		}
		log.Warn("JWT_SECRET not set, using an ephemeral signing key")
		secret = generated
	}
	return NewWithKey(secret, p.Config.Auth.JWTIssuer, p.Config.Auth.TokenTTL, p.Clock, log), nil
}

func NewWithKey(signingKey, issuer string, defaultTTL time.Duration, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Service{
		log:        log,
		clock:      clk,
		signingKey: []byte(signingKey),
		issuer:     issuer,
		defaultTTL: defaultTTL,
	}
}

// GenerateSigningKey returns a random hex encoded HMAC key.
func GenerateSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) Issue(actor authdomain.Actor, ttl time.Duration) (string, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return "", authdomain.ErrInvalidToken
	}
	if _, err := authdomain.ParseRole(string(actor.Role)); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.clock.Now()
	claims := Claims{
		UserID: actor.ID,
		Email:  strings.TrimSpace(actor.Email),
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

func (s *Service) Parse(raw string) (authdomain.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return authdomain.Actor{}, authdomain.ErrUnauthorized
	}

	parser := jwt.Parser{}
	claims := &Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return authdomain.Actor{}, authdomain.ErrTokenExpired
		}
		s.log.Debug("token rejected", zap.Error(err))
		return authdomain.Actor{}, authdomain.ErrInvalidToken
	}
	if !token.Valid {
		return authdomain.Actor{}, authdomain.ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return authdomain.Actor{}, authdomain.ErrInvalidToken
	}

	role, err := authdomain.ParseRole(claims.Role)
	if err != nil {
		return authdomain.Actor{}, authdomain.ErrInvalidToken
	}
	return authdomain.Actor{ID: claims.UserID, Email: claims.Email, Role: role}, nil
}
