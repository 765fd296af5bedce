package credentials

import "sync"

// StubStore is an in-memory Store.
type StubStore struct {
	mu          sync.Mutex
	Credentials ClientCredentials
	CredsErr    error
	Token       *SessionToken
	Saves       int
	Clears      int
}

func NewStubStore(creds ClientCredentials, token *SessionToken) *StubStore {
	return &StubStore{Credentials: creds, Token: token}
}

func (s *StubStore) LoadCredentials() (ClientCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Credentials, s.CredsErr
}

func (s *StubStore) LoadToken() (*SessionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Token == nil {
		return nil, nil
	}
	token := *s.Token
	return &token, nil
}

func (s *StubStore) SaveToken(token SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Token = &token
	s.Saves++
	return nil
}

func (s *StubStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Token = nil
	s.Clears++
	return nil
}

func (s *StubStore) Persisted() *SessionToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Token == nil {
		return nil
	}
	token := *s.Token
	return &token
}
