package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/klokku/calexport/internal/utils"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	Load() (Settings, error)
	Save(settings Settings) error
}

// FileRepository keeps the settings in a single JSON file.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load returns the stored settings, or defaults when there is no file yet.
func (r *FileRepository) Load() (Settings, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("no settings file at %s, using defaults", r.path)
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("unable to read settings %s: %w", r.path, err)
	}

	settings := Defaults()
	if err := json.Unmarshal(data, &settings); err != nil {
		log.Warnf("settings file %s is not valid JSON, using defaults: %v", r.path, err)
		return Defaults(), nil
	}
	return settings.withDefaults(), nil
}

func (r *FileRepository) Save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode settings: %w", err)
	}
	if err := utils.WriteFileAtomic(r.path, data, 0o644); err != nil {
		err := fmt.Errorf("unable to write settings %s: %w", r.path, err)
		log.Error(err)
		return err
	}
	return nil
}
