package settings

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/klokku/calexport/internal/event_bus"
	"github.com/klokku/calexport/internal/utils"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	Get(ctx context.Context) Settings
	Update(ctx context.Context, settings Settings) (Settings, error)
	SelectedCalendarIds(ctx context.Context) []string
	// DefaultFilename expands the filename pattern for the current date.
	DefaultFilename(ctx context.Context) string
}

// Validator checks values the settings package cannot judge by itself, like colour names.
type Validator func(settings Settings) error

type ServiceImpl struct {
	repo     Repository
	clock    utils.Clock
	validate Validator

	mu       sync.RWMutex
	settings Settings
}

// NewService loads the settings once. Every later change is written through to repo.
func NewService(repo Repository, clock utils.Clock, validate Validator) (*ServiceImpl, error) {
	settings, err := repo.Load()
	if err != nil {
		return nil, err
	}
	return &ServiceImpl{repo: repo, clock: clock, validate: validate, settings: settings.withDefaults()}, nil
}

func (s *ServiceImpl) Get(ctx context.Context) Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.settings)
}

func (s *ServiceImpl) Update(ctx context.Context, settings Settings) (Settings, error) {
	if settings.StartDaysAgo < 0 {
		return Settings{}, fmt.Errorf("%w: start_days_ago must not be negative", ErrInvalidSettings)
	}
	if strings.ContainsAny(settings.DefaultFilenamePattern, `/\`) {
		return Settings{}, fmt.Errorf("%w: filename pattern must not contain a path", ErrInvalidSettings)
	}
	if s.validate != nil {
		if err := s.validate(settings); err != nil {
			return Settings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	}
	settings = clone(settings.withDefaults())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Save(settings); err != nil {
		return Settings{}, err
	}
	s.settings = settings
	log.Debug("settings updated")
	return clone(settings), nil
}

func (s *ServiceImpl) SelectedCalendarIds(ctx context.Context) []string {
	return s.Get(ctx).SelectedCalendarIds
}

func (s *ServiceImpl) DefaultFilename(ctx context.Context) string {
	return ExpandFilename(s.Get(ctx).DefaultFilenamePattern, s.clock.Now())
}

// SubscribeToExports stores the selections of every successful export as the new settings.
func (s *ServiceImpl) SubscribeToExports(bus *event_bus.EventBus) (unsubscribe func()) {
	return event_bus.SubscribeTyped(bus, event_bus.ExportCompletedType, func(e event_bus.EventT[event_bus.ExportCompleted]) error {
		current := s.Get(e.Context())
		current.SelectedCalendarIds = slices.Clone(e.Data.CalendarIds)
		current.ColourSelection = slices.Clone(e.Data.Colours)
		current.TypeMap = maps.Clone(e.Data.TypeMap)
		if _, err := s.Update(e.Context(), current); err != nil {
			log.Errorf("unable to remember export selections: %v", err)
			return err
		}
		return nil
	})
}

func clone(settings Settings) Settings {
	settings.SelectedCalendarIds = slices.Clone(settings.SelectedCalendarIds)
	settings.ColourSelection = slices.Clone(settings.ColourSelection)
	settings.TypeMap = maps.Clone(settings.TypeMap)
	return settings
}
