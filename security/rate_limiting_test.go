package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:status:1.2.3.4").SetVal(1)
	mock.ExpectExpire("ratelimit:status:1.2.3.4", time.Minute).SetVal(true)

	assert.True(t, limiter.Allow(context.Background(), "status", "1.2.3.4"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:status:1.2.3.4").SetVal(6)

	assert.False(t, limiter.Allow(context.Background(), "status", "1.2.3.4"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_ExpireOnlySetOnFirstHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:status:1.2.3.4").SetVal(3)

	assert.True(t, limiter.Allow(context.Background(), "status", "1.2.3.4"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisErrorFailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:status:1.2.3.4").SetErr(errors.New("connection refused"))

	assert.True(t, limiter.Allow(context.Background(), "status", "1.2.3.4"))
}

func TestRateLimiter_NilClientFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(nil, 5, time.Minute)

	assert.True(t, limiter.Allow(context.Background(), "status", "1.2.3.4"))
}
