package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/calexport/internal/event_bus"
	"github.com/klokku/calexport/internal/utils"
	"github.com/klokku/calexport/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	gcal "google.golang.org/api/calendar/v3"
)

var (
	ErrAuth      = errors.New("google authorization required")
	ErrTransient = errors.New("temporary failure talking to google")
)

// ExpiryMargin is how long before its expiry a token is already treated as expired.
const ExpiryMargin = 60 * time.Second

var Scopes = []string{gcal.CalendarReadonlyScope}

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthorizing     State = "authorizing"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateRefreshing      State = "refreshing"
)

type Status struct {
	State  State     `json:"state"`
	Flow   FlowKind  `json:"flow,omitempty"`
	Expiry time.Time `json:"expiry,omitempty"`
}

type AuthorizationStart struct {
	URL  string   `json:"authUrl"`
	Flow FlowKind `json:"flow"`
}

type pendingAuthorization struct {
	flow  Flow
	state string
}

// Session owns the OAuth session of the single user of this process.
type Session struct {
	store      credentials.Store
	creds      credentials.ClientCredentials
	clock      utils.Clock
	httpClient *http.Client
	bus        *event_bus.EventBus

	mu      sync.Mutex
	state   State
	token   *credentials.SessionToken
	pending *pendingAuthorization
	// generation changes whenever the token is replaced or forgotten outside a refresh
	generation uint64

	refreshGroup singleflight.Group
}

// NewSession loads the client descriptor and any persisted token. A broken descriptor is
// returned as credentials.ErrConfig.
func NewSession(store credentials.Store, clock utils.Clock, httpClient *http.Client, bus *event_bus.EventBus) (*Session, error) {
	creds, err := store.LoadCredentials()
	if err != nil {
		return nil, err
	}
	token, err := store.LoadToken()
	if err != nil {
		return nil, err
	}

	s := &Session{
		store:      store,
		creds:      creds,
		clock:      clock,
		httpClient: httpClient,
		bus:        bus,
		state:      StateUnauthenticated,
		token:      token,
	}
	if token != nil {
		if token.ExpiresWithin(clock.Now(), ExpiryMargin) {
			s.state = StateExpired
		} else {
			s.state = StateAuthenticated
		}
	}
	log.Debugf("google session starts %s", s.state)
	return s, nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{State: s.state}
	if s.pending != nil {
		status.Flow = s.pending.flow.Kind()
	}
	if s.token != nil {
		status.Expiry = s.token.Expiry
	}
	return status
}

// GetValidToken returns an access token that stays valid for at least ExpiryMargin, refreshing
// it when needed. ErrAuth means the user has to authorize again.
func (s *Session) GetValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token == nil {
		state := s.state
		s.mu.Unlock()
		if state == StateAuthorizing {
			return "", fmt.Errorf("%w: authorization has not been completed", ErrAuth)
		}
		return "", fmt.Errorf("%w: no session", ErrAuth)
	}
	if !s.token.ExpiresWithin(s.clock.Now(), ExpiryMargin) {
		s.setState(StateAuthenticated)
		access := s.token.AccessToken
		s.mu.Unlock()
		return access, nil
	}

	if s.state != StateRefreshing {
		s.setState(StateExpired)
	}
	if s.token.RefreshToken == "" {
		log.Info("google token expired and there is no refresh token, authorization required")
		s.dropToken()
		s.mu.Unlock()
		return "", fmt.Errorf("%w: token expired", ErrAuth)
	}
	s.mu.Unlock()

	access, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return access.(string), nil
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	current := s.token
	if current == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: session was cleared", ErrAuth)
	}
	if !current.ExpiresWithin(s.clock.Now(), ExpiryMargin) {
		s.mu.Unlock()
		return current.AccessToken, nil
	}
	generation := s.generation
	s.setState(StateRefreshing)
	s.mu.Unlock()

	log.Debug("refreshing google access token")
	src := s.oauthConfig("").TokenSource(withHTTPClient(ctx, s.httpClient), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		log.Debug("session changed while refreshing, refresh result discarded")
		if s.token == nil {
			return "", fmt.Errorf("%w: session was cleared", ErrAuth)
		}
		return s.token.AccessToken, nil
	}

	if err != nil {
		if refreshTokenRejected(err) {
			log.Warnf("google rejected the refresh token, authorization required: %v", err)
			s.dropToken()
			return "", fmt.Errorf("%w: refresh failed: %w", ErrAuth, err)
		}
		log.Errorf("unable to refresh google token: %v", err)
		s.setState(StateExpired)
		return "", fmt.Errorf("%w: refresh failed: %w", ErrTransient, err)
	}

	refreshed := credentials.FromOAuth2(tok, Scopes, current)
	s.token = &refreshed
	if err := s.store.SaveToken(refreshed); err != nil {
		log.Errorf("refreshed token could not be persisted: %v", err)
	}
	s.setState(StateAuthenticated)
	return refreshed.AccessToken, nil
}

// refreshTokenRejected tells a revoked or invalid refresh token apart from a token endpoint
// that is failing on its own side.
func refreshTokenRejected(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	switch retrieveErr.ErrorCode {
	case "invalid_grant", "unauthorized_client":
		return true
	}
	if retrieveErr.Response == nil {
		return false
	}
	status := retrieveErr.Response.StatusCode
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError
}

// Invalidate marks accessToken as rejected by the provider, so the next GetValidToken refreshes
// it. A token that has already been replaced is left alone.
func (s *Session) Invalidate(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || s.token.AccessToken != accessToken {
		return
	}
	log.Info("google rejected the access token, it will be refreshed")
	rejected := *s.token
	rejected.Expiry = time.Time{}
	s.token = &rejected
	s.setState(StateExpired)
}

// TokenProvider hands out access tokens and takes back the ones the provider rejected.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
	Invalidate(accessToken string)
}

// WithValidToken runs call with a valid access token. When the provider answers ErrAuth the
// token is invalidated and call runs once more with a fresh one.
func WithValidToken[T any](ctx context.Context, tokens TokenProvider, call func(accessToken string) (T, error)) (T, error) {
	token, err := tokens.GetValidToken(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	result, err := call(token)
	if !errors.Is(err, ErrAuth) {
		return result, err
	}

	log.Debugf("access token rejected, retrying with a fresh one: %v", err)
	tokens.Invalidate(token)
	token, err = tokens.GetValidToken(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return call(token)
}

// BeginAuthorization starts a new authorization and returns the URL the user has to open.
// redirectHint is the base URL this process is reachable at, empty when it is not reachable
// from the browser; it decides between the redirect and the manual flow.
func (s *Session) BeginAuthorization(redirectHint string) AuthorizationStart {
	flow := selectFlow(s.creds, redirectHint)
	state := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &pendingAuthorization{flow: flow, state: state}
	s.setState(StateAuthorizing)

	log.Tracef("authorization started with %s flow, state %s", flow.Kind(), state)
	authURL := s.oauthConfig(flow.RedirectURL()).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return AuthorizationStart{URL: authURL, Flow: flow.Kind()}
}

// CompleteAuthorization resumes the pending authorization with what the user (manual flow) or
// the provider callback (redirect flow) delivered, exchanging the code for a token.
func (s *Session) CompleteAuthorization(ctx context.Context, payload string) (credentials.SessionToken, error) {
	s.mu.Lock()
	pending := s.pending
	if pending == nil {
		s.mu.Unlock()
		return credentials.SessionToken{}, fmt.Errorf("%w: no authorization in progress", ErrAuth)
	}
	code, state, err := pending.flow.ParseResponse(payload)
	if err == nil && state != "" && state != pending.state {
		err = fmt.Errorf("%w: authorization state does not match", ErrAuth)
	}
	// a pending authorization is usable once
	s.pending = nil
	if err != nil {
		log.Warnf("authorization response rejected: %v", err)
		s.setState(s.restingState())
		s.mu.Unlock()
		return credentials.SessionToken{}, err
	}
	s.mu.Unlock()

	tok, err := s.oauthConfig(pending.flow.RedirectURL()).Exchange(withHTTPClient(ctx, s.httpClient), code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.setState(s.restingState())
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			err := fmt.Errorf("%w: unable to exchange code for token: %w", ErrAuth, err)
			log.Error(err)
			return credentials.SessionToken{}, err
		}
		err := fmt.Errorf("%w: unable to exchange code for token: %w", ErrTransient, err)
		log.Error(err)
		return credentials.SessionToken{}, err
	}

	token := credentials.FromOAuth2(tok, Scopes, s.token)
	s.token = &token
	s.generation++
	if err := s.store.SaveToken(token); err != nil {
		log.Errorf("token could not be persisted: %v", err)
	}
	s.setState(StateAuthenticated)
	log.Info("google authorization completed")
	return token, nil
}

// Logout forgets the session, persisted token included.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	s.token = nil
	s.generation++
	s.setState(StateUnauthenticated)
	return s.store.ClearToken()
}

// restingState is the state matching the held token once no authorization is in progress.
// Caller holds s.mu.
func (s *Session) restingState() State {
	switch {
	case s.token == nil:
		return StateUnauthenticated
	case s.token.ExpiresWithin(s.clock.Now(), ExpiryMargin):
		return StateExpired
	default:
		return StateAuthenticated
	}
}

// dropToken clears the in-memory and persisted token. Caller holds s.mu.
func (s *Session) dropToken() {
	s.token = nil
	if err := s.store.ClearToken(); err != nil {
		log.Errorf("unable to clear persisted token: %v", err)
	}
	s.setState(StateUnauthenticated)
}

// setState records a transition. Caller holds s.mu; subscribers must not call back into the
// session.
func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	previous := s.state
	s.state = next
	log.Debugf("google session %s -> %s", previous, next)

	if s.bus == nil {
		return
	}
	change := event_bus.AuthStateChanged{From: string(previous), To: string(next)}
	if s.pending != nil {
		change.Flow = string(s.pending.flow.Kind())
	}
	if err := s.bus.Publish(event_bus.NewEvent(context.Background(), event_bus.AuthStateChangedType, change)); err != nil {
		log.Warnf("auth state change not delivered: %v", err)
	}
}

func (s *Session) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.creds.ClientID,
		ClientSecret: s.creds.ClientSecret,
		Endpoint:     s.creds.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}
}
