package cache

import (
	"sync"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(DefaultExpiration, 0)
	defer c.Close()

	c.Set("key1", "value1", DefaultExpiration)
	value, found := c.Get("key1")
	if !found {
		t.Error("key1 missing")
	}
	if value != "value1" {
		t.Errorf("value = %v, want value1", value)
	}

	if _, found = c.Get("nonexistent"); found {
		t.Error("nonexistent key found")
	}

	c.Set("key2", 42, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if _, found = c.Get("key2"); found {
		t.Error("key2 should have expired")
	}

	c.Set("key3", true, NoExpiration)
	time.Sleep(100 * time.Millisecond)
	if _, found = c.Get("key3"); !found {
		t.Error("NoExpiration key3 expired")
	}
}

func TestCacheDelete(t *testing.T) {
	c := NewCache(DefaultExpiration, 0)
	defer c.Close()

	c.Set("key1", "value1", DefaultExpiration)
	c.Delete("key1")
	if _, found := c.Get("key1"); found {
		t.Error("key1 found after delete")
	}

	// deleting a missing key is fine
	c.Delete("nonexistent")
}

func TestCacheJanitor(t *testing.T) {
	c := NewCache(30*time.Millisecond, 20*time.Millisecond)
	defer c.Close()

	c.Set("key1", 1, DefaultExpiration)
	c.Set("key2", 2, NoExpiration)

	time.Sleep(100 * time.Millisecond)

	c.mu.RLock()
	_, rawFound := c.items["key1"]
	c.mu.RUnlock()
	if rawFound {
		t.Error("janitor did not evict key1")
	}
	if _, found := c.Get("key2"); !found {
		t.Error("janitor evicted a NoExpiration item")
	}
}

func TestCacheConcurrency(t *testing.T) {
	c := NewCache(5*time.Minute, 0)
	defer c.Close()

	const workers = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(workers * 2)

	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				key := string('A' + rune(workerID))
				c.Set(key, j, DefaultExpiration)
			}
		}(i)
	}
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				for k := 0; k < workers; k++ {
					c.Get(string('A' + rune(k)))
				}
			}
		}(i)
	}
	wg.Wait()
}
