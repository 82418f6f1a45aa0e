package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	// StateCookieName is the cookie holding the OAuth2 state and PKCE verifier
	StateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// CookieConfig holds session cookie settings
type CookieConfig struct {
	SessionName string
	Secure      bool
	TTL         time.Duration
}

// loginState is carried across the hosted UI redirect
type loginState struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	ReturnTo string `json:"return_to"`
}

// Cookies signs, and optionally encrypts, the session and login state
// cookies
type Cookies struct {
	session *securecookie.SecureCookie
	state   *securecookie.SecureCookie
	cfg     CookieConfig
}

// NewCookies creates the cookie codecs. blockKey may be nil to sign
// without encrypting.
func NewCookies(hashKey, blockKey []byte, cfg CookieConfig) *Cookies {
	if cfg.SessionName == "" {
		cfg.SessionName = "session"
	}

	session := securecookie.New(hashKey, blockKey).MaxAge(int(cfg.TTL.Seconds()))
	session.SetSerializer(securecookie.JSONEncoder{})

	state := securecookie.New(hashKey, blockKey).MaxAge(int(stateCookieTTL.Seconds()))
	state.SetSerializer(securecookie.JSONEncoder{})

	return &Cookies{session: session, state: state, cfg: cfg}
}

// SessionName returns the name of the session cookie
func (c *Cookies) SessionName() string {
	return c.cfg.SessionName
}

// WriteSession sets the session cookie to id
func (c *Cookies) WriteSession(w http.ResponseWriter, id uuid.UUID) error {
	encoded, err := c.session.Encode(c.cfg.SessionName, id.String())
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.SessionName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(c.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ReadSession returns the session id from a valid session cookie
func (c *Cookies) ReadSession(r *http.Request) (uuid.UUID, bool) {
	cookie, err := r.Cookie(c.cfg.SessionName)
	if err != nil {
		return uuid.Nil, false
	}

	var raw string
	if err := c.session.Decode(c.cfg.SessionName, cookie.Value, &raw); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ClearSession expires the session cookie
func (c *Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, c.cfg.SessionName)
}

func (c *Cookies) writeLoginState(w http.ResponseWriter, st loginState) error {
	encoded, err := c.state.Encode(StateCookieName, st)
	if err != nil {
		return err
	}

	// Lax so the cookie survives the top-level redirect back from the IdP
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *Cookies) readLoginState(r *http.Request) (loginState, bool) {
	var st loginState
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return st, false
	}
	if err := c.state.Decode(StateCookieName, cookie.Value, &st); err != nil {
		return st, false
	}
	return st, true
}

func (c *Cookies) clearLoginState(w http.ResponseWriter) {
	c.clear(w, StateCookieName)
}

func (c *Cookies) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
