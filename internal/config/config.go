package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const appName = "calexport"

type Application struct {
	// Host is the public base URL of this process. The web OAuth flow is only used when one of
	// the descriptor's redirect URIs points back at it.
	Host     string   `koanf:"host"`
	Listen   string   `koanf:"listen"`
	Timezone string   `koanf:"timezone"`
	Google   Google   `koanf:"google"`
	Settings Settings `koanf:"settings"`
	Export   Export   `koanf:"export"`
}

type Google struct {
	CredentialsFile string `koanf:"credentialsfile"`
	TokenFile       string `koanf:"tokenfile"`
	// InsecureSkipVerify disables TLS certificate verification on every provider call.
	InsecureSkipVerify bool   `koanf:"insecureskipverify"`
	PageSize           int64  `koanf:"pagesize"`
	MaxEvents          int    `koanf:"maxevents"`
	Endpoint           string `koanf:"endpoint"`
}

type Settings struct {
	File string `koanf:"file"`
}

type Export struct {
	Dir string `koanf:"dir"`
}

// Defaults returns the configuration used before any file or environment overrides.
func Defaults() Application {
	exportDir := xdg.UserDirs.Download
	if exportDir == "" {
		exportDir = filepath.Join(xdg.DataHome, appName, "exports")
	}
	return Application{
		Host:   "http://localhost:8181",
		Listen: ":8181",
		Google: Google{
			CredentialsFile: filepath.Join(xdg.ConfigHome, appName, "credentials.json"),
			TokenFile:       filepath.Join(xdg.DataHome, appName, "token.json"),
			PageSize:        250,
			MaxEvents:       10000,
		},
		Settings: Settings{
			File: filepath.Join(xdg.ConfigHome, appName, "settings.json"),
		},
		Export: Export{
			Dir: exportDir,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "CALEXPORT_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "CALEXPORT_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}
	if app.Google.PageSize <= 0 || app.Google.PageSize > 2500 {
		return Application{}, fmt.Errorf("google.pagesize must be between 1 and 2500, got %d", app.Google.PageSize)
	}
	if app.Google.MaxEvents <= 0 {
		return Application{}, fmt.Errorf("google.maxevents must be positive, got %d", app.Google.MaxEvents)
	}

	return app, nil
}

// Location resolves the viewer time zone. An empty timezone means the process local zone.
func (a Application) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}
