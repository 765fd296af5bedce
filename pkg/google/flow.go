package google

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/klokku/calexport/pkg/credentials"
)

type FlowKind string

const (
	// FlowManual shows the authorization URL and waits for the user to paste the code back.
	FlowManual FlowKind = "manual"
	// FlowRedirect waits for the provider to redirect the browser to our callback.
	FlowRedirect FlowKind = "redirect"
)

const defaultInstalledRedirect = "http://localhost"

// Flow is one way of getting an authorization code back from the user.
type Flow interface {
	Kind() FlowKind
	RedirectURL() string
	// ParseResponse extracts the authorization code and, when present, the state from what the
	// flow received.
	ParseResponse(payload string) (code string, state string, err error)
}

type manualFlow struct {
	redirectURL string
}

func (f manualFlow) Kind() FlowKind      { return FlowManual }
func (f manualFlow) RedirectURL() string { return f.redirectURL }

// ParseResponse accepts the bare code or the whole redirect URL copied from the browser.
func (f manualFlow) ParseResponse(payload string) (string, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", "", fmt.Errorf("%w: empty authorization code", ErrAuth)
	}
	if !strings.Contains(payload, "code=") && !strings.Contains(payload, "error=") {
		return payload, "", nil
	}
	return parseCallbackQuery(payload)
}

type redirectFlow struct {
	redirectURL string
}

func (f redirectFlow) Kind() FlowKind      { return FlowRedirect }
func (f redirectFlow) RedirectURL() string { return f.redirectURL }

// ParseResponse expects the callback query string (or URL). The state is mandatory here.
func (f redirectFlow) ParseResponse(payload string) (string, string, error) {
	code, state, err := parseCallbackQuery(strings.TrimSpace(payload))
	if err != nil {
		return "", "", err
	}
	if state == "" {
		return "", "", fmt.Errorf("%w: callback is missing the state parameter", ErrAuth)
	}
	return code, state, nil
}

func parseCallbackQuery(payload string) (string, string, error) {
	rawQuery := payload
	if i := strings.Index(payload, "?"); i >= 0 {
		rawQuery = payload[i+1:]
	}
	if i := strings.Index(rawQuery, "#"); i >= 0 {
		rawQuery = rawQuery[:i]
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", "", fmt.Errorf("%w: unable to parse authorization response: %v", ErrAuth, err)
	}
	if providerErr := values.Get("error"); providerErr != "" {
		return "", "", fmt.Errorf("%w: provider denied authorization: %s", ErrAuth, providerErr)
	}
	code := values.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("%w: authorization response has no code", ErrAuth)
	}
	return code, values.Get("state"), nil
}

// selectFlow uses the redirect flow only for web clients with a redirect URI under the base URL
// this process is reachable at. Everything else falls back to the manual flow.
func selectFlow(creds credentials.ClientCredentials, redirectHint string) Flow {
	if creds.FlowType == credentials.FlowWeb && redirectHint != "" {
		base := strings.TrimRight(redirectHint, "/")
		for _, uri := range creds.RedirectURIs {
			if uri == base || strings.HasPrefix(uri, base+"/") {
				return redirectFlow{redirectURL: uri}
			}
		}
	}
	redirect := defaultInstalledRedirect
	if len(creds.RedirectURIs) > 0 {
		redirect = creds.RedirectURIs[0]
	}
	return manualFlow{redirectURL: redirect}
}
