package smartapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	xhttp "SignalHub/pkg/http"
)

// Authenticator re-authenticates against the vendor and yields a fresh JWT.
// The market client invokes it lazily and again after an auth failure.
type Authenticator interface {
	Login(ctx context.Context) (string, error)
}

// Credential is the cached session token.
type Credential struct {
	Token    string
	LoadedAt time.Time
}

// session caches one credential and refreshes it through the Authenticator.
type session struct {
	auth Authenticator

	mu   sync.Mutex
	cred *Credential
}

func newSession(auth Authenticator) *session {
	return &session{auth: auth}
}

// token returns the cached credential, logging in when none is cached.
func (s *session) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil {
		return s.cred.Token, nil
	}
	tok, err := s.auth.Login(ctx)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	s.cred = &Credential{Token: tok, LoadedAt: time.Now()}
	return tok, nil
}

// invalidate drops the cached credential so the next call logs in again.
func (s *session) invalidate() {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()
}

// PasswordAuthenticator logs in with client code, PIN and a TOTP derived from
// the registered secret.
type PasswordAuthenticator struct {
	BaseURL    string
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	HTTP *xhttp.Client
}

type loginRequest struct {
	ClientCode string `json:"clientcode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		JWTToken string `json:"jwtToken"`
	} `json:"data"`
}

// Login performs the vendor password+TOTP login and returns the JWT.
func (a *PasswordAuthenticator) Login(ctx context.Context) (string, error) {
	code, err := totp.GenerateCode(a.TOTPSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("totp: %w", err)
	}

	var out loginResponse
	err = a.HTTP.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    a.BaseURL + "/rest/auth/angelbroking/user/v1/loginByPassword",
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
			"X-UserType":   "USER",
			"X-SourceID":   "WEB",
			"X-PrivateKey": a.APIKey,
		},
		Body: loginRequest{ClientCode: a.ClientCode, Password: a.Password, TOTP: code},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	if !out.Status || out.Data.JWTToken == "" {
		return "", &VendorError{StatusCode: http.StatusOK, Message: out.Message}
	}
	return out.Data.JWTToken, nil
}
