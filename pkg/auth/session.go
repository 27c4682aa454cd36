package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// Session store kinds
const (
	SessionStoreJWT   = "jwt"
	SessionStoreRedis = "redis"
)

// DefaultSessionTTL applies when no TTL is configured
const DefaultSessionTTL = 12 * time.Hour

// SessionStore issues and validates dashboard session tokens. A token never
// contains the dashboard password.
type SessionStore interface {
	Issue(ctx context.Context, username string) (string, error)
	// Validate returns the username the token was issued to
	Validate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	TTL() time.Duration
}

// NewSessionStore builds the store selected by cfg.SessionStore. rdb is only
// used by the redis store.
func NewSessionStore(cfg config.DashboardConfig, rdb redis.UniversalClient, logger observability.Logger) (SessionStore, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	switch cfg.SessionStore {
	case SessionStoreJWT, "":
		secret := cfg.SessionSecret
		if secret == "" {
			generated, err := randomSecret()
			if err != nil {
				return nil, err
			}
			secret = generated
			logger.Warn("No session secret configured, dashboard sessions will not survive a restart", nil)
		}
		return NewJWTSessionStore(secret, cfg.SessionTTL)
	case SessionStoreRedis:
		if rdb == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		return NewRedisSessionStore(rdb, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return string(buf), nil
}

// JWTSessionStore signs sessions as HS256 tokens carrying the username and
// an expiry. Tokens cannot be revoked before they expire.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTSessionStore creates a JWT session store
func NewJWTSessionStore(secret string, ttl time.Duration) (*JWTSessionStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &JWTSessionStore{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for username
func (s *JWTSessionStore) Issue(_ context.Context, username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate verifies the signature and expiry of token
func (s *JWTSessionStore) Validate(_ context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidSession
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", ErrInvalidSession
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ExpiresAt == nil {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}

// Revoke is a no-op; the token lapses at its expiry
func (s *JWTSessionStore) Revoke(context.Context, string) error {
	return nil
}

// TTL returns the session lifetime
func (s *JWTSessionStore) TTL() time.Duration {
	return s.ttl
}

const redisSessionPrefix = "style:session:"

// RedisSessionStore maps opaque session ids to usernames in redis
type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSessionStore creates a redis backed session store
func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

// NewRedisClient connects to redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}

// Issue stores a new session id for username
func (s *RedisSessionStore) Issue(ctx context.Context, username string) (string, error) {
	id := uuid.NewString()
	if err := s.client.Set(ctx, redisSessionPrefix+id, username, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return id, nil
}

// Validate looks the session id up
func (s *RedisSessionStore) Validate(ctx context.Context, token string) (string, error) {
	if _, err := uuid.Parse(token); err != nil {
		return "", ErrInvalidSession
	}
	username, err := s.client.Get(ctx, redisSessionPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionExpired
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return username, nil
}

// Revoke deletes the session id
func (s *RedisSessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisSessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// TTL returns the session lifetime
func (s *RedisSessionStore) TTL() time.Duration {
	return s.ttl
}
