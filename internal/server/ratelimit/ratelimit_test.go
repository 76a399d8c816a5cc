package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func frozen(l *Limiter, at time.Time) {
	l.now = func() time.Time { return at }
}

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()
	now := time.Now()
	frozen(limiter, now)

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/pipelines/x", "GET")
		if !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
		if info.Limit != 10 {
			t.Errorf("Expected limit 10, got %d", info.Limit)
		}
		if info.Remaining != 10-i-1 {
			t.Errorf("Expected remaining %d, got %d", 10-i-1, info.Remaining)
		}
	}

	allowed, info := limiter.Allow("127.0.0.1", "/pipelines/x", "GET")
	if allowed {
		t.Error("Expected 11th request to be denied")
	}
	if info.Remaining != 0 {
		t.Errorf("Expected remaining 0, got %d", info.Remaining)
	}
	if info.RetryAfter <= 0 {
		t.Error("Expected retry after to be positive")
	}
	if !info.ResetTime.After(now) {
		t.Error("Reset time should be in the future")
	}

	// One token refills every six seconds
	frozen(limiter, now.Add(7*time.Second))
	if allowed, _ := limiter.Allow("127.0.0.1", "/pipelines/x", "GET"); !allowed {
		t.Error("Expected request to be allowed after refill")
	}
	if allowed, _ := limiter.Allow("127.0.0.1", "/pipelines/x", "GET"); allowed {
		t.Error("Expected request to be denied after consuming refilled token")
	}
}

func TestLimiter_Whitelist(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"127.0.0.1": true},
	})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/methods", "GET")
		if !allowed {
			t.Errorf("Expected whitelisted request %d to be allowed", i+1)
		}
		if info.Limit != 0 {
			t.Errorf("Expected limit 0 for whitelisted, got %d", info.Limit)
		}
	}
}

func TestLimiter_Blacklist(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		Blacklist:     map[string]bool{"192.168.1.1": true},
	})
	defer limiter.Stop()

	if allowed, _ := limiter.Allow("192.168.1.1", "/methods", "GET"); allowed {
		t.Error("Expected blacklisted request to be denied")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		if allowed, _ := limiter.Allow("127.0.0.1", "/pipelines", "POST"); !allowed {
			t.Errorf("Expected request %d to be allowed when disabled", i+1)
		}
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	})
	defer limiter.Stop()
	frozen(limiter, time.Now())
	clientID := "127.0.0.1"

	for i := 0; i < 5; i++ {
		if allowed, _ := limiter.Allow(clientID, "/pipelines", "POST"); !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}
	allowed, info := limiter.Allow(clientID, "/pipelines", "POST")
	if allowed {
		t.Error("Expected 6th request to be denied")
	}
	if info.Limit != 30 {
		t.Errorf("Expected limit 30, got %d", info.Limit)
	}

	// Prefix routes share one bucket across pipeline ids
	for i := 0; i < 10; i++ {
		if allowed, _ := limiter.Allow(clientID, fmt.Sprintf("/pipelines/%d/cancel", i), "POST"); !allowed {
			t.Errorf("Expected cancel %d to be allowed", i)
		}
	}
	if allowed, _ := limiter.Allow(clientID, "/pipelines/99/restart", "POST"); allowed {
		t.Error("Expected prefix bucket to be exhausted")
	}

	allowed, info = limiter.Allow(clientID, "/pipelines/1", "GET")
	if !allowed {
		t.Error("Expected reads to use the default limit")
	}
	if info.Limit != 1000 {
		t.Errorf("Expected default limit 1000, got %d", info.Limit)
	}

	if allowed, _ := limiter.Allow(clientID, "/health", "GET"); !allowed {
		t.Error("Expected health check to be unlimited")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()
	frozen(limiter, time.Now())

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/methods", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != 100 {
		t.Errorf("Expected 100 allowed requests, got %d", allowedCount)
	}
}

func TestLimiter_CleanupBuckets(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	start := time.Now()
	frozen(limiter, start)
	for i := 0; i < 10; i++ {
		limiter.Allow(fmt.Sprintf("127.0.0.%d", i+1), "/methods", "GET")
	}
	frozen(limiter, start.Add(2*time.Hour))
	for i := 0; i < 5; i++ {
		limiter.Allow(fmt.Sprintf("127.0.0.%d", i+1), "/methods", "GET")
	}

	limiter.cleanupBuckets(start.Add(time.Hour))
	limiter.mu.Lock()
	n := len(limiter.buckets)
	limiter.mu.Unlock()
	if n != 5 {
		t.Errorf("Expected 5 buckets after cleanup, got %d", n)
	}
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()
	if ec := MatchEndpoint("/pipelines", "POST", configs); ec == nil || ec.Path != "/pipelines" {
		t.Errorf("Expected exact match for /pipelines, got %+v", ec)
	}
	if ec := MatchEndpoint("/pipelines/abc/cancel", "POST", configs); ec == nil || ec.Path != "/pipelines/" {
		t.Errorf("Expected prefix match, got %+v", ec)
	}
	if ec := MatchEndpoint("/sources/data.csv", "PUT", configs); ec == nil || ec.Path != "/sources/" {
		t.Errorf("Expected prefix match for uploads, got %+v", ec)
	}
	if ec := MatchEndpoint("/pipelines/abc", "GET", configs); ec != nil {
		t.Errorf("Expected no match for reads, got %+v", ec)
	}
	if ec := MatchEndpoint("/metrics", "GET", configs); ec == nil || ec.Limit != 0 {
		t.Errorf("Expected unlimited scrape endpoint, got %+v", ec)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AUGMENT_RATE_LIMIT_DEFAULT_LIMIT", "42")
	t.Setenv("AUGMENT_RATE_LIMIT_DEFAULT_WINDOW", "30s")
	t.Setenv("AUGMENT_RATE_LIMIT_WHITELIST", "10.0.0.1, 10.0.0.2")

	cfg := LoadConfig()
	if !cfg.Enabled {
		t.Error("Expected rate limiting enabled by default")
	}
	if cfg.DefaultLimit != 42 {
		t.Errorf("Expected default limit 42, got %d", cfg.DefaultLimit)
	}
	if cfg.DefaultWindow != 30*time.Second {
		t.Errorf("Expected window 30s, got %s", cfg.DefaultWindow)
	}
	if !cfg.Whitelist["10.0.0.2"] {
		t.Error("Expected 10.0.0.2 to be whitelisted")
	}

	t.Setenv("AUGMENT_RATE_LIMIT_ENABLED", "false")
	if LoadConfig().Enabled {
		t.Error("Expected rate limiting disabled")
	}
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/methods", "GET")
	if !allowed {
		t.Error("Expected request to be allowed with default config")
	}
	if info.Limit != 1000 {
		t.Errorf("Expected default limit 1000, got %d", info.Limit)
	}
}
