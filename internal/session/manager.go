package session

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/pipeline-console/internal/route"
)

// CookieName is the cookie that carries the sealed API key.
const CookieName = "po_session"

// Manager loads session state from cookies and writes it back.
type Manager struct {
	codec  *Codec
	secure bool
	logger *slog.Logger
}

// NewManager creates a session manager. secure marks cookies HTTPS-only.
func NewManager(codec *Codec, secure bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{codec: codec, secure: secure, logger: logger}
}

// Load reads the session state of r. Missing, tampered or expired cookies
// produce an empty state.
func (m *Manager) Load(r *http.Request) *State {
	state := NewState("")
	if cookie, err := r.Cookie(CookieName); err == nil {
		key, err := m.codec.Decode(cookie.Value)
		if err != nil {
			m.logger.Debug("ignoring session cookie", "error", err)
		} else {
			state = NewState(key)
		}
	}
	state.SetRoute(route.ParsePath(r.URL.Path))
	return state
}

// Middleware injects the session state into every request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := m.Load(r)
		next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
	})
}

// Save writes the state's API key to the session cookie, clearing the
// cookie when the key is empty.
func (m *Manager) Save(w http.ResponseWriter, state *State) error {
	key := state.APIKey()
	if key == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   m.secure,
			MaxAge:   -1,
		})
		return nil
	}

	value, err := m.codec.Encode(key)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.codec.MaxAge().Seconds()),
	})
	return nil
}
