package settings

import "sync"

type RepositoryStub struct {
	mu       sync.Mutex
	settings *Settings
	Saves    int
	SaveErr  error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{}
}

func (s *RepositoryStub) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return Defaults(), nil
	}
	return *s.settings, nil
}

func (s *RepositoryStub) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.settings = &settings
	s.Saves++
	return nil
}
