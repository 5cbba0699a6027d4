package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenRevoked = errors.New("token revoked")

// RevocationList keeps revoked token ids (jti) in redis until their natural
// expiry, so logout takes effect before the token's time window closes.
type RevocationList struct {
	client *redis.Client
}

func NewRevocationList(client *redis.Client) *RevocationList {
	return &RevocationList{client: client}
}

func revocationKey(jti string) string {
	return "auth:revoked:" + jti
}

func (l *RevocationList) Revoke(ctx context.Context, claims *Claims) error {
	if l.client == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, revocationKey(claims.ID), "1", ttl).Err()
}

// Check returns ErrTokenRevoked if the token id has been revoked. A redis
// error fails open: authentication stays up during a cache outage.
func (l *RevocationList) Check(ctx context.Context, claims *Claims) error {
	if l.client == nil || claims.ID == "" {
		return nil
	}
	_, err := l.client.Get(ctx, revocationKey(claims.ID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return nil
	}
	return ErrTokenRevoked
}
