package secret

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/kv"
	"github.com/hakanai/hakanai/internal/logging"
	"github.com/hakanai/hakanai/internal/wire"
)

func newTestEngine() (*Engine, kv.Store) {
	store := kv.NewMemoryStore()
	chain := NewChain(true, true, nil)
	log := logging.New(logging.Config{Level: "error"})
	e := New(store, chain, log, nil)
	return e, store
}

func TestCreateThenRetrieveReturnsCiphertext(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	id, err := e.Create(ctx, CreateParams{Ciphertext: "abc", ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rc := RequestContext{IP: net.ParseIP("1.2.3.4")}
	got, err := e.Retrieve(ctx, id, rc, "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != "abc" {
		t.Fatalf("got %q, want abc", got)
	}
}

func TestRetrieveIsOneShot(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	id, err := e.Create(ctx, CreateParams{Ciphertext: "abc", ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rc := RequestContext{IP: net.ParseIP("1.2.3.4")}

	if _, err := e.Retrieve(ctx, id, rc, ""); err != nil {
		t.Fatalf("first Retrieve: %v", err)
	}

	_, err = e.Retrieve(ctx, id, rc, "")
	se, ok := err.(*Error)
	if !ok || se.Code != wire.ErrSecretNotFound {
		t.Fatalf("expected ErrSecretNotFound on second retrieval, got %v", err)
	}
}

func TestConcurrentRetrieveExactlyOneWinner(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	id, err := e.Create(ctx, CreateParams{Ciphertext: "abc", ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rc := RequestContext{IP: net.ParseIP("1.2.3.4")}

	const n = 50
	var wg sync.WaitGroup
	var successes int
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.Retrieve(ctx, id, rc, ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful retrieval, got %d", successes)
	}
}

func TestRetrieveWithWrongPassphraseRestoresRecord(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	correctHash := auth.HashToken("correct horse battery staple")
	id, err := e.Create(ctx, CreateParams{
		Ciphertext: "abc",
		ExpiresIn:  time.Minute,
		Restrictions: &wire.Restrictions{
			PassphraseHash: correctHash,
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rc := RequestContext{IP: net.ParseIP("1.2.3.4")}

	_, err = e.Retrieve(ctx, id, rc, "wrong")
	se, ok := err.(*Error)
	if !ok || se.Code != wire.ErrPassphraseRequired {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}

	got, err := e.Retrieve(ctx, id, rc, correctHash)
	if err != nil {
		t.Fatalf("retrieve with correct passphrase: %v", err)
	}
	if got != "abc" {
		t.Fatalf("got %q, want abc", got)
	}
}

func TestRetrieveDeniedByIPRestrictionRestoresRecord(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	id, err := e.Create(ctx, CreateParams{
		Ciphertext: "abc",
		ExpiresIn:  time.Minute,
		Restrictions: &wire.Restrictions{
			AllowedIPs: []string{"10.0.0.0/8"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deniedRC := RequestContext{IP: net.ParseIP("1.2.3.4")}
	_, err = e.Retrieve(ctx, id, deniedRC, "")
	se, ok := err.(*Error)
	if !ok || se.Code != wire.ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	allowedRC := RequestContext{IP: net.ParseIP("10.1.2.3")}
	got, err := e.Retrieve(ctx, id, allowedRC, "")
	if err != nil {
		t.Fatalf("retrieve from allowed IP: %v", err)
	}
	if got != "abc" {
		t.Fatalf("got %q, want abc", got)
	}
}

func TestRetrieveCountryRestrictionDisabledReturnsNotSupported(t *testing.T) {
	store := kv.NewMemoryStore()
	chain := NewChain(false, true, nil)
	log := logging.New(logging.Config{Level: "error"})
	e := New(store, chain, log, nil)
	ctx := context.Background()

	id, err := e.Create(ctx, CreateParams{
		Ciphertext: "abc",
		ExpiresIn:  time.Minute,
		Restrictions: &wire.Restrictions{
			AllowedCountries: []string{"US"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rc := RequestContext{IP: net.ParseIP("1.2.3.4")}
	_, err = e.Retrieve(ctx, id, rc, "")
	se, ok := err.(*Error)
	if !ok || se.Code != wire.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}

	got, err := store.Get(ctx, secretKeyPrefix+id)
	if err != nil || len(got) == 0 {
		t.Fatalf("expected record to be restored after disabled-restriction denial, err=%v", err)
	}
}

func TestRetrieveUnknownIDReturnsNotFound(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	_, err := e.Retrieve(ctx, "does-not-exist", RequestContext{IP: net.ParseIP("1.2.3.4")}, "")
	se, ok := err.(*Error)
	if !ok || se.Code != wire.ErrSecretNotFound {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}
