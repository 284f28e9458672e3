package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKey_StableAndDistinct(t *testing.T) {
	a := Key("embed", "model", "hello")
	b := Key("embed", "model", "hello")
	c := Key("embed", "modelhello")

	if a != b {
		t.Errorf("expected identical keys, got %q and %q", a, b)
	}
	if a == c {
		t.Errorf("expected part boundaries to matter")
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if err := c.Set(TypeLLM, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get(TypeLLM, "k")
	if !ok || string(got) != "v" {
		t.Errorf("expected hit with v, got %q %v", got, ok)
	}

	// Types are separate namespaces
	if _, ok := c.Get(TypeFetch, "k"); ok {
		t.Errorf("expected miss for a different cache type")
	}
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	in := []byte("abc")
	_ = c.Set(TypeEmbedding, "k", in, 0)
	in[0] = 'x'

	got, _ := c.Get(TypeEmbedding, "k")
	if string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q", got)
	}
	got[1] = 'y'
	again, _ := c.Get(TypeEmbedding, "k")
	if string(again) != "abc" {
		t.Errorf("expected returned copy, got %q", again)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	c.Set(TypeLLM, "k", []byte("v"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(TypeLLM, "k"); ok {
		t.Errorf("expected expired entry to miss")
	}
	n, _ := c.Purge()
	if n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}
}

func TestDiskCache_FileLayout(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour, nil)

	if err := c.Set(TypeEmbedding, "abc", []byte(`[0.1,0.2]`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	path := filepath.Join(dir, "embedding", "abc.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected cache file at %s: %v", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("cache file is not JSON: %v", err)
	}
	for _, field := range []string{"value", "created_at", "expires_at", "cache_type"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("expected field %q in cache file", field)
		}
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Join(dir, "embedding"))
	if len(entries) != 1 {
		t.Errorf("expected exactly one file, got %d", len(entries))
	}
}

func TestDiskCache_RoundTripNonJSON(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour, nil)
	c.Set(TypeFetch, "k", []byte("<feed>not json</feed>"), time.Hour)

	got, ok := c.Get(TypeFetch, "k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "<feed>not json</feed>" {
		t.Errorf("unexpected value %q", got)
	}
}

func TestDiskCache_ExpiredIsRemoved(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour, nil)
	c.Set(TypeLLM, "k", []byte(`"v"`), time.Millisecond)

	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get(TypeLLM, "k"); ok {
		t.Fatal("expected miss after expiry")
	}
	if _, err := os.Stat(filepath.Join(dir, "llm", "k.json")); !os.IsNotExist(err) {
		t.Errorf("expected expired file to be deleted, stat err=%v", err)
	}
}

func TestDiskCache_CorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour, nil)

	os.MkdirAll(filepath.Join(dir, "llm"), 0755)
	os.WriteFile(filepath.Join(dir, "llm", "k.json"), []byte("{broken"), 0644)

	if _, ok := c.Get(TypeLLM, "k"); ok {
		t.Errorf("expected corrupt entry to miss")
	}
}

func TestDiskCache_UnsafeKeyIsHashed(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour, nil)

	if err := c.Set(TypeFetch, "../../escape", []byte(`1`), time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(TypeFetch, "../../escape"); !ok {
		t.Errorf("expected hit for hashed key")
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "escape.json")); err == nil {
		t.Errorf("key escaped the cache directory")
	}
}

func TestDiskCache_Purge(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour, nil)
	c.Set(TypeLLM, "old", []byte(`1`), time.Millisecond)
	c.Set(TypeLLM, "new", []byte(`2`), time.Hour)

	time.Sleep(10 * time.Millisecond)

	n, err := c.Purge()
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}
	if _, ok := c.Get(TypeLLM, "new"); !ok {
		t.Errorf("expected live entry to survive purge")
	}
}

func TestDiskCache_PurgeMissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "absent"), time.Hour, nil)
	if n, err := c.Purge(); err != nil || n != 0 {
		t.Errorf("expected clean purge of missing dir, got %d %v", n, err)
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour, nil)
	disk.Set(TypeExpansion, "k", []byte(`["a"]`), time.Hour)

	c := NewLayeredCache(time.Minute, time.Minute, dir, nil)
	got, ok := c.Get(TypeExpansion, "k")
	if !ok || string(got) != `["a"]` {
		t.Fatalf("expected disk hit, got %q %v", got, ok)
	}

	if _, ok := c.memory.Get(TypeExpansion, "k"); !ok {
		t.Errorf("expected entry promoted to memory")
	}
}

func TestLayeredCache_NeverOutlivesTTL(t *testing.T) {
	c := NewLayeredCache(time.Hour, time.Minute, t.TempDir(), nil)
	c.Set(TypeLLM, "k", []byte(`1`), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(TypeLLM, "k"); ok {
		t.Errorf("expected expired entry to miss in both layers")
	}
}

func TestLayeredCache_ClearAndDelete(t *testing.T) {
	c := NewLayeredCache(time.Minute, time.Minute, t.TempDir(), nil)
	c.Set(TypeLLM, "a", []byte(`1`), time.Hour)
	c.Set(TypeLLM, "b", []byte(`2`), time.Hour)

	c.Delete(TypeLLM, "a")
	if _, ok := c.Get(TypeLLM, "a"); ok {
		t.Errorf("expected deleted entry to miss")
	}

	c.Clear()
	if _, ok := c.Get(TypeLLM, "b"); ok {
		t.Errorf("expected cleared entry to miss")
	}
}

func TestRemember_ComputesOnce(t *testing.T) {
	c := NewLayeredCache(time.Minute, time.Minute, t.TempDir(), nil)
	calls := 0
	fn := func() ([]string, error) {
		calls++
		return []string{"vaccine", "autism"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Remember(c, TypeExpansion, "claim", time.Hour, fn)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0] != "vaccine" {
			t.Errorf("unexpected value %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 computation, got %d", calls)
	}
}

func TestRemember_ErrorNotCached(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	boom := errors.New("boom")
	calls := 0

	fn := func() (int, error) {
		calls++
		return 0, boom
	}
	Remember(c, TypeLLM, "k", time.Hour, fn)
	_, err := Remember(c, TypeLLM, "k", time.Hour, fn)

	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected failures to be recomputed, got %d calls", calls)
	}
}

func TestRemember_NilCache(t *testing.T) {
	got, err := Remember[int](nil, TypeLLM, "k", time.Hour, func() (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("expected passthrough, got %d %v", got, err)
	}
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	c.Set(TypeLLM, "k", []byte("v"), time.Hour)
	if _, ok := c.Get(TypeLLM, "k"); ok {
		t.Errorf("noop cache should never hit")
	}
}
