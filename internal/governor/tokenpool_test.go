package governor

import (
	"context"
	"testing"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

func testTokenPoolLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestNewTokenPoolReturnsNilWithoutRedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if p := NewTokenPool(testTokenPoolLogger(t)); p != nil {
		t.Fatalf("NewTokenPool without REDIS_ADDR: want nil, got=%v", p)
	}
}

func TestNewTokenPoolFallsBackOnUnreachableRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	if p := NewTokenPool(testTokenPoolLogger(t)); p != nil {
		t.Fatalf("NewTokenPool with unreachable redis: want nil fallback, got=%v", p)
	}
}

func TestNilTokenPoolMethodsAreNoOps(t *testing.T) {
	var p *TokenPool
	ok, err := p.Acquire(context.Background(), ClassAssets, 1)
	if !ok || err != nil {
		t.Fatalf("nil TokenPool.Acquire: want (true, nil), got=(%v, %v)", ok, err)
	}
	p.Release(context.Background(), ClassAssets)
	if err := p.Close(); err != nil {
		t.Fatalf("nil TokenPool.Close: want nil, got=%v", err)
	}
}
