package providers

import (
	"errors"
	"fmt"
	"testing"
)

type fakeClient struct{ id int }

func TestClientCache_ReusesAndBounds(t *testing.T) {
	cache := newClientCache[*fakeClient](3)
	built := 0
	build := func() (*fakeClient, error) {
		built++
		return &fakeClient{id: built}, nil
	}

	server, _ := cache.get("google", "server-key", build)
	for i := 0; i < 100; i++ {
		if _, err := cache.get("google", fmt.Sprintf("user-key-%d", i), build); err != nil {
			t.Fatalf("get: %v", err)
		}
		// The server key is used between request keys and stays cached.
		again, _ := cache.get("google", "server-key", build)
		if again != server {
			t.Fatalf("server client rebuilt after %d request keys", i+1)
		}
	}
	if got := cache.len(); got != 3 {
		t.Fatalf("len = %d, want 3", got)
	}
	if built != 101 {
		t.Fatalf("built = %d, want 101", built)
	}
}

func TestClientCache_SeparatesProviders(t *testing.T) {
	cache := newClientCache[*fakeClient](0)
	n := 0
	build := func() (*fakeClient, error) { n++; return &fakeClient{id: n}, nil }

	a, _ := cache.get("openrouter", "k", build)
	b, _ := cache.get("groq", "k", build)
	if a == b {
		t.Fatal("same secret for different providers must not share a client")
	}
	if cache.limit != DefaultMaxClients {
		t.Fatalf("limit = %d, want %d", cache.limit, DefaultMaxClients)
	}
}

func TestClientCache_BuildErrorNotCached(t *testing.T) {
	cache := newClientCache[*fakeClient](2)
	boom := errors.New("boom")
	if _, err := cache.get("google", "k", func() (*fakeClient, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if cache.len() != 0 {
		t.Fatal("failed build must not be cached")
	}
}

func TestGenericBackend_ClientCacheBounded(t *testing.T) {
	b := NewGenericBackend(GenericConfig{MaxClients: 4})
	for i := 0; i < 50; i++ {
		if _, err := b.client("openrouter", fmt.Sprintf("sk-or-%d", i)); err != nil {
			t.Fatalf("client: %v", err)
		}
	}
	if got := b.clients.len(); got != 4 {
		t.Fatalf("cached clients = %d, want 4", got)
	}
}
