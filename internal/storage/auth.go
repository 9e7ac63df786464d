package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Authorizer produces an authenticated HTTP client for the given scopes.
type Authorizer interface {
	Authorize(ctx context.Context, scopes ...string) (*http.Client, error)
}

// ServiceAccountAuthorizer authorizes with Google credentials loaded from
// inline JSON, a key file, or the application default credentials.
type ServiceAccountAuthorizer struct {
	CredentialsFile string
	CredentialsJSON string
}

// Authorize implements Authorizer.
func (a *ServiceAccountAuthorizer) Authorize(ctx context.Context, scopes ...string) (*http.Client, error) {
	creds, err := a.credentials(ctx, scopes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorization, err)
	}

	// Fail here rather than on the first storage call.
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, fmt.Errorf("%w: failed to obtain token: %v", ErrAuthorization, err)
	}

	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

func (a *ServiceAccountAuthorizer) credentials(ctx context.Context, scopes []string) (*google.Credentials, error) {
	switch {
	case a.CredentialsJSON != "":
		return google.CredentialsFromJSON(ctx, []byte(a.CredentialsJSON), scopes...)
	case a.CredentialsFile != "":
		data, err := os.ReadFile(a.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return google.CredentialsFromJSON(ctx, data, scopes...)
	default:
		return google.FindDefaultCredentials(ctx, scopes...)
	}
}
