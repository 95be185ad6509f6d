package credential

import (
	"fmt"
	"net/http"

	"github.com/RoM4iK/tinker-agent/internal/fsys"
)

// Environment variables read inside an agent container.
const (
	EnvAppClientID       = "GITHUB_APP_CLIENT_ID"
	EnvAppID             = "GITHUB_APP_ID"
	EnvAppInstallationID = "GITHUB_APP_INSTALLATION_ID"
	EnvAppPrivateKeyPath = "GITHUB_APP_PRIVATE_KEY_PATH"
	EnvToken             = "GH_TOKEN"
	EnvHost              = "GH_HOST"
	EnvCachePath         = "TINKER_TOKEN_CACHE"
)

// Settings is the strategy as described by the environment.
type Settings struct {
	AppClientID       string
	AppInstallationID string
	AppPrivateKeyPath string
	Token             string
	Host              string
	CachePath         string
}

// SettingsFromEnv reads [Settings] through getenv. The client
// identifier falls back to the legacy numeric application id.
func SettingsFromEnv(getenv func(string) string) Settings {
	s := Settings{
		AppClientID:       getenv(EnvAppClientID),
		AppInstallationID: getenv(EnvAppInstallationID),
		AppPrivateKeyPath: getenv(EnvAppPrivateKeyPath),
		Token:             getenv(EnvToken),
		Host:              getenv(EnvHost),
		CachePath:         getenv(EnvCachePath),
	}
	if s.AppClientID == "" {
		s.AppClientID = getenv(EnvAppID)
	}
	if s.CachePath == "" {
		s.CachePath = DefaultCachePath
	}
	return s
}

// IsApp reports whether every application-identity field is present.
func (s Settings) IsApp() bool {
	return s.AppClientID != "" && s.AppInstallationID != "" && s.AppPrivateKeyPath != ""
}

// Source builds the strategy the settings describe. Application
// identity wins over a static token when both are present.
func (s Settings) Source(fs fsys.FS, client *http.Client) (Source, error) {
	switch {
	case s.IsApp():
		pemData, err := fs.ReadFile(s.AppPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		key, err := ParsePrivateKey(pemData)
		if err != nil {
			return nil, err
		}
		return &App{
			ClientID:       s.AppClientID,
			InstallationID: s.AppInstallationID,
			Key:            key,
			BaseURL:        APIBase(s.Host),
			HTTP:           client,
			Cache:          NewFileCache(fs, s.CachePath),
		}, nil
	case s.Token != "":
		return Static(s.Token), nil
	default:
		return nil, ErrNotConfigured
	}
}
