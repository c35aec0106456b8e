package cache

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testCache(t *testing.T, ns string) *Cache {
	t.Helper()
	storage, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return New(ns, storage, Policy{MaxAge: time.Minute, StaleWhileRevalidate: time.Minute}, nil)
}

func TestReadMiss(t *testing.T) {
	c := testCache(t, "app")
	res := c.Read("absent")
	if res.Status != StatusMiss {
		t.Errorf("status = %s, want miss", res.Status)
	}
	if !res.ShouldRevalidate {
		t.Error("miss should ask for revalidation")
	}
}

func TestWriteRead(t *testing.T) {
	c := testCache(t, "app")
	if err := c.Write("profile", map[string]string{"name": "Ana"}, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, res, err := Get[map[string]string](c, "profile")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if res.Status != StatusFresh {
		t.Errorf("status = %s, want fresh", res.Status)
	}
	if got["name"] != "Ana" {
		t.Errorf("value = %v, want name=Ana", got)
	}
}

func TestFreshnessWindows(t *testing.T) {
	// maxAge=100ms, swr=50ms; classification at ages 50, 120, 200.
	policy := &Policy{MaxAge: 100 * time.Millisecond, StaleWhileRevalidate: 50 * time.Millisecond}

	tests := []struct {
		age        time.Duration
		want       Status
		revalidate bool
	}{
		{50 * time.Millisecond, StatusFresh, false},
		{120 * time.Millisecond, StatusStale, true},
		{200 * time.Millisecond, StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			c := New("app", NewMemoryStorage(), Policy{}, nil)
			base := time.Now()
			c.now = func() time.Time { return base }
			if err := c.Write("k", "v", policy); err != nil {
				t.Fatal(err)
			}

			c.now = func() time.Time { return base.Add(tt.age) }
			res := c.Read("k")
			if res.Status != tt.want {
				t.Errorf("at age %v status = %s, want %s", tt.age, res.Status, tt.want)
			}
			if res.ShouldRevalidate != tt.revalidate {
				t.Errorf("at age %v shouldRevalidate = %v, want %v", tt.age, res.ShouldRevalidate, tt.revalidate)
			}
			if res.Age != tt.age {
				t.Errorf("age = %v, want %v", res.Age, tt.age)
			}
		})
	}
}

func TestCorruptEntryPurged(t *testing.T) {
	storage := NewMemoryStorage()
	c := New("app", storage, Policy{MaxAge: time.Minute}, nil)

	if err := storage.Set("app:bad", "{not json"); err != nil {
		t.Fatal(err)
	}

	res := c.Read("bad")
	if res.Status != StatusMiss {
		t.Errorf("status = %s, want miss for corrupt entry", res.Status)
	}
	if _, ok, _ := storage.Get("app:bad"); ok {
		t.Error("corrupt entry should have been purged")
	}
}

func TestMutate(t *testing.T) {
	c := testCache(t, "app")
	if err := c.Write("count", 1, nil); err != nil {
		t.Fatal(err)
	}

	err := c.Mutate("count", func(prev json.RawMessage) (any, error) {
		var n int
		if prev != nil {
			if err := json.Unmarshal(prev, &n); err != nil {
				return nil, err
			}
		}
		return n + 1, nil
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	got, _, err := Get[int](c, "count")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestMutateNilInvalidates(t *testing.T) {
	c := testCache(t, "app")
	if err := c.Write("k", "v", nil); err != nil {
		t.Fatal(err)
	}

	err := c.Mutate("k", func(json.RawMessage) (any, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}

	if res := c.Read("k"); res.Status != StatusMiss {
		t.Errorf("status = %s, want miss after invalidating mutate", res.Status)
	}
}

func TestClearIsNamespaceScoped(t *testing.T) {
	storage := NewMemoryStorage()
	a := New("a", storage, Policy{MaxAge: time.Minute}, nil)
	b := New("b", storage, Policy{MaxAge: time.Minute}, nil)

	if err := a.Write("k", "va", nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Write("k", "vb", nil); err != nil {
		t.Fatal(err)
	}

	if err := a.Clear(); err != nil {
		t.Fatal(err)
	}

	if res := a.Read("k"); res.Status != StatusMiss {
		t.Errorf("namespace a status = %s, want miss", res.Status)
	}
	if res := b.Read("k"); res.Status == StatusMiss {
		t.Error("Clear crossed namespaces: b's entry is gone")
	}
}

// failingStorage errors on every operation, simulating a disabled or
// quota-exhausted durable store.
type failingStorage struct{}

func (failingStorage) Get(string) (string, bool, error) { return "", false, errors.New("io error") }
func (failingStorage) Set(string, string) error         { return errors.New("io error") }
func (failingStorage) Delete(string) error              { return errors.New("io error") }
func (failingStorage) Keys(string) ([]string, error)    { return nil, errors.New("io error") }
func (failingStorage) Close() error                     { return nil }

func TestFallbackOnBackendFailure(t *testing.T) {
	c := New("app", failingStorage{}, Policy{MaxAge: time.Minute}, nil)

	if err := c.Write("k", "v", nil); err != nil {
		t.Fatalf("Write() should fall back to memory, got error %v", err)
	}

	got, res, err := Get[string](c, "k")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusFresh || got != "v" {
		t.Errorf("fallback read = (%q, %s), want (v, fresh)", got, res.Status)
	}
}

func TestInvalidate(t *testing.T) {
	c := testCache(t, "app")
	if err := c.Write("k", "v", nil); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("k")
	if res := c.Read("k"); res.Status != StatusMiss {
		t.Errorf("status = %s, want miss after invalidate", res.Status)
	}
}
