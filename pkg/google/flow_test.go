package google

import (
	"testing"

	"github.com/klokku/calexport/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectFlow(t *testing.T) {
	web := credentials.ClientCredentials{
		FlowType:     credentials.FlowWeb,
		RedirectURIs: []string{"https://other.example.com/cb", "http://localhost:8181/api/auth/callback"},
	}
	installed := credentials.ClientCredentials{
		FlowType:     credentials.FlowInstalled,
		RedirectURIs: []string{"urn:ietf:wg:oauth:2.0:oob", "http://localhost"},
	}

	testCases := []struct {
		name         string
		creds        credentials.ClientCredentials
		hint         string
		wantKind     FlowKind
		wantRedirect string
	}{
		{"web client reachable at a redirect uri", web, "http://localhost:8181/", FlowRedirect, "http://localhost:8181/api/auth/callback"},
		{"web client not reachable", web, "", FlowManual, "https://other.example.com/cb"},
		{"web client on a different host", web, "http://localhost:9000", FlowManual, "https://other.example.com/cb"},
		{"host prefix is not a path prefix", web, "http://localhost:81", FlowManual, "https://other.example.com/cb"},
		{"installed client ignores the hint", installed, "http://localhost", FlowManual, "urn:ietf:wg:oauth:2.0:oob"},
		{"no redirect uris", credentials.ClientCredentials{FlowType: credentials.FlowInstalled}, "", FlowManual, "http://localhost"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			flow := selectFlow(tc.creds, tc.hint)
			assert.Equal(t, tc.wantKind, flow.Kind())
			assert.Equal(t, tc.wantRedirect, flow.RedirectURL())
		})
	}
}

func TestManualFlow_ParseResponse(t *testing.T) {
	flow := manualFlow{redirectURL: "http://localhost"}

	testCases := []struct {
		name      string
		payload   string
		wantCode  string
		wantState string
		wantErr   bool
	}{
		{name: "bare code", payload: " 4/0Abc-def ", wantCode: "4/0Abc-def"},
		{name: "full redirect url", payload: "http://localhost/?state=s1&code=abc&scope=x", wantCode: "abc", wantState: "s1"},
		{name: "query only", payload: "code=abc", wantCode: "abc"},
		{name: "provider error", payload: "http://localhost/?error=access_denied", wantErr: true},
		{name: "empty", payload: "  ", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, state, err := flow.ParseResponse(tc.payload)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrAuth)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantState, state)
		})
	}
}

func TestRedirectFlow_RequiresState(t *testing.T) {
	flow := redirectFlow{redirectURL: "http://localhost:8181/api/auth/callback"}

	_, _, err := flow.ParseResponse("code=abc")
	assert.ErrorIs(t, err, ErrAuth)

	code, state, err := flow.ParseResponse("code=abc&state=s1")
	require.NoError(t, err)
	assert.Equal(t, "abc", code)
	assert.Equal(t, "s1", state)
}
