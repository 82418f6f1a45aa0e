package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/upb/workdesk/config"
	"golang.org/x/oauth2"
)

// CognitoTokenExchanger runs the OAuth2 authorization code flow with PKCE
// against the Cognito hosted UI
type CognitoTokenExchanger struct {
	oauth      oauth2.Config
	httpClient *http.Client
}

// NewCognitoTokenExchanger creates a new token exchanger
func NewCognitoTokenExchanger(cfg config.CognitoConfig) *CognitoTokenExchanger {
	domain := strings.TrimSuffix(cfg.Domain, "/")
	return &CognitoTokenExchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  domain + "/oauth2/authorize",
				TokenURL: domain + "/oauth2/token",
			},
			Scopes: []string{"openid", "email", "profile"},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthCodeURL returns the hosted UI URL that starts a login. verifier is
// the PKCE verifier that ExchangeCode must later be given.
func (e *CognitoTokenExchanger) AuthCodeURL(state, verifier string) string {
	return e.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// ExchangeCode exchanges an authorization code for tokens and returns the
// raw ID token
func (e *CognitoTokenExchanger) ExchangeCode(ctx context.Context, code, verifier string) (string, error) {
	if e.oauth.ClientID == "" {
		return "", fmt.Errorf("cognito not configured")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	token, err := e.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", WrapExternal("token exchange failed", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", NewDomainError(ErrorTypeExternal, "no id_token in token response", nil)
	}
	return idToken, nil
}
