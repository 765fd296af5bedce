package credentials

import (
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var ErrConfig = errors.New("invalid client credentials configuration")

type FlowType string

const (
	// FlowInstalled is a desktop client: the user pastes the code back by hand.
	FlowInstalled FlowType = "installed"
	// FlowWeb is a web client: the provider redirects the browser back with the code.
	FlowWeb FlowType = "web"
)

// ClientCredentials is the OAuth client descriptor. It is never modified after loading.
type ClientCredentials struct {
	FlowType     FlowType
	ClientID     string
	ClientSecret string
	AuthURI      string
	TokenURI     string
	RedirectURIs []string
}

// Endpoint returns the provider endpoints declared by the descriptor.
func (c ClientCredentials) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  c.AuthURI,
		TokenURL: c.TokenURI,
	}
}

// SessionToken is the persisted OAuth session.
type SessionToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// ExpiresWithin reports whether the token is expired at now+margin.
// A zero expiry is treated as expired: the provider always sends one.
func (t SessionToken) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" || t.Expiry.IsZero() {
		return true
	}
	return !now.Before(t.Expiry.Add(-margin))
}

// FromOAuth2 builds a SessionToken from a provider token. The refresh token is kept from
// previous when the provider omits it on refresh.
func FromOAuth2(tok *oauth2.Token, scopes []string, previous *SessionToken) SessionToken {
	refresh := tok.RefreshToken
	if refresh == "" && previous != nil {
		refresh = previous.RefreshToken
	}
	granted := scopes
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		granted = strings.Fields(raw)
	}
	granted = slices.Clone(granted)
	slices.Sort(granted)
	return SessionToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		Expiry:       tok.Expiry,
		Scopes:       slices.Compact(granted),
	}
}
