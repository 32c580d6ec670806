package praxis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuilderRequiresStoreAndRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(engineTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected Build to fail without a store")
	}
	if _, err := New().WithConfig(engineTestConfig()).WithStore(newMemStore(newTestClock())).Build(); err == nil {
		t.Fatal("expected Build to fail without a redis client")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := engineTestConfig()
	cfg.EncryptionKey = nil
	if _, err := New().WithConfig(cfg).WithStore(newMemStore(newTestClock())).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected Build to reject an invalid config")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := New().WithConfig(engineTestConfig()).WithStore(newMemStore(newTestClock())).WithRedis(rdb)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build on the same builder to fail")
	}
}

func TestBuildWithoutRelyingPartySkipsWebAuthn(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	if env.engine.wan != nil {
		t.Fatal("expected no webauthn instance without RP configuration")
	}
}
