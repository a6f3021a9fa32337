package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/narvanalabs/pipeline-console/internal/route"
)

const testSecret = "test-session-secret-at-least-32-characters"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, "", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

// **Feature: pipeline-console, Property 10: Session Cookie Round Trip**
// *For any* API key, decoding an encoded cookie SHALL return the same key,
// and the cookie SHALL NOT contain the key in clear text.

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("encode then decode preserves the key", prop.ForAll(
		func(key string) bool {
			value, err := codec.Encode(key)
			if err != nil {
				t.Logf("Encode: %v", err)
				return false
			}
			if len(key) >= 8 && strings.Contains(value, key) {
				t.Logf("cookie leaks key %q", key)
				return false
			}
			got, err := codec.Decode(value)
			return err == nil && got == key
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}

func TestCodecRejectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	value, err := codec.Encode("k-123")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parts := strings.Split(value, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	for name, v := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"signature": tampered,
	} {
		if _, err := codec.Decode(v); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("%s: err = %v, want ErrInvalidSession", name, err)
		}
	}

	other, err := NewCodec("another-secret-that-is-long-enough-xx", "", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, err := other.Decode(value); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("foreign secret: err = %v", err)
	}
}

func TestCodecExpiry(t *testing.T) {
	codec := newTestCodec(t)
	issued := time.Now()
	codec.now = func() time.Time { return issued }
	value, err := codec.Encode("k")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := codec.Decode(value); !errors.Is(err, ErrExpiredSession) {
		t.Fatalf("err = %v, want ErrExpiredSession", err)
	}
}

func TestCodecWithConfiguredIdentity(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewCodec(testSecret, id.String(), time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	b, err := NewCodec(testSecret, id.String(), time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	value, _ := a.Encode("shared")
	if got, err := b.Decode(value); err != nil || got != "shared" {
		t.Fatalf("restart lost the session: %q, %v", got, err)
	}

	if _, err := NewCodec(testSecret, "AGE-SECRET-KEY-BOGUS", time.Hour); err == nil {
		t.Fatal("invalid identity accepted")
	}
}

func TestManagerCookieFlow(t *testing.T) {
	m := NewManager(newTestCodec(t), true, nil)

	rec := httptest.NewRecorder()
	if err := m.Save(rec, NewState("secret-key")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].HttpOnly || !cookies[0].Secure || cookies[0].MaxAge != 3600 {
		t.Fatalf("cookies = %+v", cookies)
	}

	var seen *State
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/runs/12", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen.APIKey() != "secret-key" {
		t.Fatalf("key = %q", seen.APIKey())
	}
	if seen.Route() != (route.Route{View: route.ViewRunDetail, RunID: 12}) {
		t.Fatalf("route = %+v", seen.Route())
	}

	req = httptest.NewRequest(http.MethodGet, "/tools", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tampered"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen.APIKey() != "" {
		t.Fatalf("tampered cookie produced key %q", seen.APIKey())
	}

	rec = httptest.NewRecorder()
	if err := m.Save(rec, NewState("")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("clearing cookies = %+v", c)
	}
}

func TestStateAccessors(t *testing.T) {
	if FromContext(context.Background()).APIKey() != "" {
		t.Fatal("empty context has a key")
	}

	s := NewState("a")
	ctx := WithState(context.Background(), s)
	FromContext(ctx).SetAPIKey("a")
	if s.Changed() {
		t.Fatal("same key marked changed")
	}
	FromContext(ctx).SetAPIKey("b")
	FromContext(ctx).SetRoute(route.Route{View: route.ViewLogs})
	if !s.Changed() || s.APIKey() != "b" || s.Route().View != route.ViewLogs {
		t.Fatalf("state = key %q route %+v changed %v", s.APIKey(), s.Route(), s.Changed())
	}
}
