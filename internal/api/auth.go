package api

import "net/http"

// Authenticator applies credentials to an outgoing request. The variant is
// chosen at construction and injected into the client; nothing mutates a
// shared client after the fact.
type Authenticator interface {
	Apply(r *http.Request)
}

// PasswordAuth authenticates with HTTP basic user/password credentials.
type PasswordAuth struct {
	User     string
	Password string
}

func (a PasswordAuth) Apply(r *http.Request) {
	r.SetBasicAuth(a.User, a.Password)
}

// TokenAuth authenticates with a personal access token as a bearer header.
type TokenAuth struct {
	Token string
}

func (a TokenAuth) Apply(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+a.Token)
}
