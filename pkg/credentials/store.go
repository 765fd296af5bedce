package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klokku/calexport/internal/utils"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

// Store loads the client descriptor and persists the session token. It does no network I/O.
type Store interface {
	LoadCredentials() (ClientCredentials, error)
	// LoadToken returns nil when no usable token is persisted.
	LoadToken() (*SessionToken, error)
	SaveToken(token SessionToken) error
	ClearToken() error
}

type FileStore struct {
	credentialsPath string
	tokenPath       string
}

func NewFileStore(credentialsPath, tokenPath string) *FileStore {
	return &FileStore{
		credentialsPath: credentialsPath,
		tokenPath:       tokenPath,
	}
}

func (s *FileStore) LoadCredentials() (ClientCredentials, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(s.credentialsPath)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		parser = kjson.Parser()
	}

	if err := k.Load(file.Provider(s.credentialsPath), parser); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err := fmt.Errorf("%w: credentials file %s not found", ErrConfig, s.credentialsPath)
			log.Error(err)
			return ClientCredentials{}, err
		}
		err := fmt.Errorf("%w: unable to parse %s: %v", ErrConfig, s.credentialsPath, err)
		log.Error(err)
		return ClientCredentials{}, err
	}

	return parseCredentials(k)
}

// parseCredentials reads the descriptor keyed by flow type. When both variants are present the
// web one wins.
func parseCredentials(k *koanf.Koanf) (ClientCredentials, error) {
	for _, flow := range []FlowType{FlowWeb, FlowInstalled} {
		if !k.Exists(string(flow)) {
			continue
		}
		section := k.Cut(string(flow))
		redirects, err := redirectURIs(section.Get("redirect_uris"))
		if err != nil {
			return ClientCredentials{}, err
		}
		creds := ClientCredentials{
			FlowType:     flow,
			ClientID:     section.String("client_id"),
			ClientSecret: section.String("client_secret"),
			AuthURI:      section.String("auth_uri"),
			TokenURI:     section.String("token_uri"),
			RedirectURIs: redirects,
		}
		if err := creds.Validate(); err != nil {
			log.Error(err)
			return ClientCredentials{}, err
		}
		log.Debugf("loaded %s OAuth client %s", flow, creds.ClientID)
		return creds, nil
	}
	err := fmt.Errorf("%w: descriptor has neither an %q nor a %q section", ErrConfig, FlowInstalled, FlowWeb)
	log.Error(err)
	return ClientCredentials{}, err
}

func redirectURIs(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: redirect_uris must contain strings, got %T", ErrConfig, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: redirect_uris has unsupported type %T", ErrConfig, raw)
	}
}

// Validate checks the fields required for the descriptor's flow type.
func (c ClientCredentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.AuthURI == "" {
		missing = append(missing, "auth_uri")
	}
	if c.TokenURI == "" {
		missing = append(missing, "token_uri")
	}
	if c.FlowType == FlowWeb {
		if c.ClientSecret == "" {
			missing = append(missing, "client_secret")
		}
		if len(c.RedirectURIs) == 0 {
			missing = append(missing, "redirect_uris")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s client is missing %s", ErrConfig, c.FlowType, strings.Join(missing, ", "))
	}
	return nil
}

func (s *FileStore) LoadToken() (*SessionToken, error) {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debugf("no persisted token at %s", s.tokenPath)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token SessionToken
	if err := json.Unmarshal(data, &token); err != nil {
		log.Warnf("ignoring unreadable token file %s: %v", s.tokenPath, err)
		return nil, nil
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		log.Warnf("ignoring empty token file %s", s.tokenPath)
		return nil, nil
	}
	return &token, nil
}

func (s *FileStore) SaveToken(token SessionToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := utils.WriteFileAtomic(s.tokenPath, data, 0o600); err != nil {
		err := fmt.Errorf("failed to save token: %w", err)
		log.Error(err)
		return err
	}
	log.Debugf("token saved to %s", s.tokenPath)
	return nil
}

func (s *FileStore) ClearToken() error {
	err := os.Remove(s.tokenPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		err := fmt.Errorf("failed to remove token file: %w", err)
		log.Error(err)
		return err
	}
	return nil
}
