package app

import (
	"github.com/klokku/calexport/internal/config"
	"github.com/klokku/calexport/internal/event_bus"
	"github.com/klokku/calexport/internal/utils"
	"github.com/klokku/calexport/pkg/credentials"
	"github.com/klokku/calexport/pkg/export"
	"github.com/klokku/calexport/pkg/google"
	"github.com/klokku/calexport/pkg/settings"
	log "github.com/sirupsen/logrus"
)

// Dependencies is the session context of one process run: every component that needs
// credentials, the provider or the user's selections gets them from here.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	CredentialStore credentials.Store
	Session         *google.Session
	GoogleClient    google.Client
	AuthHandler     *google.AuthHandler
	CalendarHandler *google.CalendarHandler

	SettingsService *settings.ServiceImpl
	SettingsHandler *settings.Handler

	Pipeline      *export.Pipeline
	ExportHandler *export.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	subscribeAuthStateLogger(deps.EventBus)

	httpClient := google.NewHTTPClient(cfg.Google.InsecureSkipVerify)
	deps.CredentialStore = credentials.NewFileStore(cfg.Google.CredentialsFile, cfg.Google.TokenFile)
	deps.Session, err = google.NewSession(deps.CredentialStore, deps.Clock, httpClient, deps.EventBus)
	if err != nil {
		log.Errorf("unable to load Google client credentials from %s: %v", cfg.Google.CredentialsFile, err)
		return nil, err
	}
	deps.GoogleClient = google.NewClient(google.ClientConfig{
		HTTPClient: httpClient,
		Endpoint:   cfg.Google.Endpoint,
		PageSize:   cfg.Google.PageSize,
		MaxEvents:  cfg.Google.MaxEvents,
	})

	deps.SettingsService, err = settings.NewService(settings.NewFileRepository(cfg.Settings.File), deps.Clock, export.ValidateSettings)
	if err != nil {
		return nil, err
	}
	deps.SettingsService.SubscribeToExports(deps.EventBus)
	deps.SettingsHandler = settings.NewHandler(deps.SettingsService)

	deps.AuthHandler = google.NewAuthHandler(deps.Session, cfg.Host)
	deps.CalendarHandler = google.NewCalendarHandler(deps.Session, deps.GoogleClient, deps.SettingsService)

	deps.Pipeline = export.NewPipeline(deps.Session, deps.GoogleClient, export.NewNormalizer(location), export.NewCsvRenderer(), cfg.Export.Dir, deps.EventBus)
	deps.ExportHandler = export.NewHandler(deps.Pipeline, deps.Session, deps.GoogleClient, deps.SettingsService, deps.Clock, location)

	return deps, nil
}

func subscribeAuthStateLogger(bus *event_bus.EventBus) {
	event_bus.SubscribeTyped(bus, event_bus.AuthStateChangedType, func(e event_bus.EventT[event_bus.AuthStateChanged]) error {
		switch e.Data.To {
		case "unauthenticated":
			log.Infof("Google session is no longer authorized (was %s)", e.Data.From)
		case "authorizing":
			log.Infof("Waiting for Google authorization (%s flow)", e.Data.Flow)
		case "authenticated":
			log.Infof("Google session authorized")
		}
		return nil
	})
}
