// Package auth builds the authenticated HTTP session the sync run talks
// through. One session is constructed per run and handed to the backends;
// there is no ambient singleton.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"birthdaysync/internal/config"
)

// Delegated scopes requested in the device-code flow.
var graphScopes = []string{
	"https://graph.microsoft.com/Calendars.ReadWrite",
	"https://graph.microsoft.com/Contacts.Read",
	"https://graph.microsoft.com/User.Read",
	"offline_access",
}

// autoSaveTokenSource wraps an oauth2.TokenSource and automatically saves
// refreshed tokens so that scheduled runs stay non-interactive.
type autoSaveTokenSource struct {
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
}

// Token implements oauth2.TokenSource and saves the token if it was refreshed.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}

	return token, nil
}

// NewGraphSession returns an authenticated HTTP client for the identity
// platform. With a client secret configured it uses the non-interactive
// client-credentials grant (suitable for CI and scheduled runs); otherwise
// it falls back to the interactive device-code flow, loading a cached token
// from the store when one exists.
func NewGraphSession(ctx context.Context, cfg *config.Config, tokenStore TokenStore) (*http.Client, error) {
	endpoint := microsoft.AzureADEndpoint(cfg.TenantID)

	if cfg.ClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     endpoint.TokenURL,
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		return cc.Client(ctx), nil
	}

	oauthConfig := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: endpoint,
		Scopes:   graphScopes,
	}
	return deviceCodeClient(ctx, oauthConfig, tokenStore)
}

// deviceCodeClient returns an HTTP client backed by a cached token,
// running the device-code flow on first use.
func deviceCodeClient(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		token, err = runDeviceFlow(ctx, oauthConfig)
		if err != nil {
			return nil, err
		}
		if err := tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
	}

	tokenSource := oauthConfig.TokenSource(ctx, token)
	autoSaveSource := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, tokenSource),
		tokenStore: tokenStore,
		lastToken:  token,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}

// runDeviceFlow performs the interactive device-code authorization,
// printing the verification URL and user code and polling until the user
// completes sign-in (or ctx expires).
func runDeviceFlow(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	resp, err := oauthConfig.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start device authorization: %w", err)
	}

	fmt.Printf("To sign in, visit %s and enter the code %s\n", resp.VerificationURI, resp.UserCode)
	fmt.Println("Waiting for authorization...")

	token, err := oauthConfig.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}

	fmt.Println("Authorization successful!")
	return token, nil
}

// NewInteractiveSession returns an authenticated HTTP client using the
// authorization-code flow with a pasted code. It is used by the google
// provider, whose OAuth app credentials come from a downloaded JSON file.
func NewInteractiveSession(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, readCode func() (string, error)) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

		fmt.Println("Please visit the following URL to authorize the application:")
		fmt.Println(authURL)
		fmt.Print("Enter the authorization code: ")

		code, err := readCode()
		if err != nil {
			return nil, fmt.Errorf("failed to read authorization code: %w", err)
		}

		token, err = oauthConfig.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		if err := tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
	}

	tokenSource := oauthConfig.TokenSource(ctx, token)
	autoSaveSource := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, tokenSource),
		tokenStore: tokenStore,
		lastToken:  token,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}
