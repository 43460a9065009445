package oidc

import (
	"context"
	"fmt"
	"time"

	xoauth2 "golang.org/x/oauth2"
)

// AuthCodeURL builds the provider's authorization redirect for a new
// login attempt.
func AuthCodeURL(p *Provider, ep Endpoints, state, nonce, verifier string) string {
	cfg := exchangeConfig(p, ep)
	opts := []xoauth2.AuthCodeOption{
		xoauth2.SetAuthURLParam("nonce", nonce),
	}
	if verifier != "" {
		opts = append(opts, xoauth2.S256ChallengeOption(verifier))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// ExchangeCode redeems the authorization code at the provider's token
// endpoint. verifier, when non-empty, completes the PKCE handshake.
func ExchangeCode(ctx context.Context, p *Provider, ep Endpoints, code, verifier string) (*xoauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var opts []xoauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, xoauth2.VerifierOption(verifier))
	}
	tok, err := exchangeConfig(p, ep).Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("token exchange with provider %q failed: %w", p.ID, err)
	}
	return tok, nil
}

// IDTokenFromResponse pulls the raw ID token out of a token response.
func IDTokenFromResponse(tok *xoauth2.Token) (string, bool) {
	raw, ok := tok.Extra("id_token").(string)
	return raw, ok && raw != ""
}

func exchangeConfig(p *Provider, ep Endpoints) *xoauth2.Config {
	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	return &xoauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       scopes,
		Endpoint: xoauth2.Endpoint{
			AuthURL:  ep.Authorization,
			TokenURL: ep.Token,
		},
	}
}
