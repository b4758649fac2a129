package remote

import (
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Authenticator provides authentication for OCI registry operations.
type Authenticator interface {
	// Authenticate returns credentials for the given registry.
	Authenticate(registry string) (username, password string, err error)
}

// DefaultAuthenticator uses the system keychain (like Docker).
type DefaultAuthenticator struct{}

// NewDefaultAuthenticator creates a default authenticator.
func NewDefaultAuthenticator() *DefaultAuthenticator {
	return &DefaultAuthenticator{}
}

// Authenticate returns credentials from the keychain.
func (a *DefaultAuthenticator) Authenticate(registry string) (string, string, error) {
	reg, err := name.NewRegistry(registry)
	if err != nil {
		return "", "", err
	}
	auth, err := authn.DefaultKeychain.Resolve(reg)
	if err != nil {
		return "", "", err
	}
	cfg, err := auth.Authorization()
	if err != nil {
		return "", "", err
	}
	return cfg.Username, cfg.Password, nil
}

// StaticAuthenticator returns the same credentials for every registry.
type StaticAuthenticator struct {
	Username string
	Password string
}

func (a StaticAuthenticator) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}

// keychain adapts an Authenticator to authn.Keychain.
type keychain struct {
	auth Authenticator
}

func newKeychain(a Authenticator) authn.Keychain {
	switch a.(type) {
	case nil, *DefaultAuthenticator:
		// keeps identity and registry tokens the keychain may return
		return authn.DefaultKeychain
	}
	return keychain{auth: a}
}

func (k keychain) Resolve(res authn.Resource) (authn.Authenticator, error) {
	user, pass, err := k.auth.Authenticate(res.RegistryStr())
	if err != nil {
		return nil, err
	}
	if user == "" && pass == "" {
		return authn.Anonymous, nil
	}
	return &authn.Basic{Username: user, Password: pass}, nil
}
