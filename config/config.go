// Package config loads settings from ATTRACTIONS_* environment variables and
// command-line flags.  Flags win over the environment, which wins over the
// defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "ATTRACTIONS"

type Config struct {
	// AdminEmail is the only identity allowed to create attractions.  When
	// empty, nobody is.
	AdminEmail string `mapstructure:"admin_email"`

	// DataProject is the GCP project holding the Firestore database.
	DataProject string `mapstructure:"data_project"`

	// ImageBucket receives uploaded attraction images.
	ImageBucket string `mapstructure:"image_bucket"`

	// LocalDataDir switches to the embedded store, with images kept in an
	// images/ subdirectory.
	LocalDataDir string `mapstructure:"local_data_dir"`

	OAuthClientID string `mapstructure:"google_oauth_client_id"`
	IDToken       string `mapstructure:"id_token"`
	IDTokenFile   string `mapstructure:"id_token_file"`

	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	UploadTimeout   time.Duration `mapstructure:"upload_timeout"`
	UploadChunkSize int           `mapstructure:"upload_chunk_size"`
}

var defaults = map[string]any{
	"admin_email":            "",
	"data_project":           "",
	"image_bucket":           "",
	"local_data_dir":         "",
	"google_oauth_client_id": "",
	"id_token":               "",
	"id_token_file":          "",
	"fetch_timeout":          30 * time.Second,
	"upload_timeout":         10 * time.Minute,
	"upload_chunk_size":      256 * 1024,
}

// RegisterFlags adds a flag for every setting to fs.  Flag names are the keys
// with dashes, e.g. --admin-email.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("admin-email", "", "Email address of the administrator account.")
	fs.String("data-project", "", "GCP project containing the Firestore database.")
	fs.String("image-bucket", "", "Cloud Storage bucket for attraction images.")
	fs.String("local-data-dir", "", "Keep data in this directory instead of Firestore and Cloud Storage.")
	fs.String("google-oauth-client-id", "", "OAuth client ID that ID tokens must be issued for.")
	fs.String("id-token", "", "Google ID token to sign in with.")
	fs.String("id-token-file", "", "File containing a Google ID token to sign in with.")
	fs.Duration("fetch-timeout", 30*time.Second, "Bound on a full catalog load.")
	fs.Duration("upload-timeout", 10*time.Minute, "Bound on a single image upload.")
	fs.Int("upload-chunk-size", 256*1024, "Resumable upload chunk size in bytes.")
}

// Load reads the configuration.  fs may be nil; otherwise it must have been
// passed to RegisterFlags, and only flags set explicitly override the
// environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if fs != nil {
		for key := range defaults {
			f := fs.Lookup(strings.ReplaceAll(key, "_", "-"))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("while binding flag %s: %w", f.Name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("while decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AdminEmail == "" {
		slog.Warn("No admin email configured; attraction creation is disabled", slog.String("env", EnvPrefix+"_ADMIN_EMAIL"))
	}
	return cfg, nil
}

var (
	ErrNoDataSource = errors.New("one of data_project or local_data_dir must be set")
	ErrNoBucket     = errors.New("image_bucket must be set when using Firestore")
)

func (c *Config) Validate() error {
	if c.LocalDataDir == "" && c.DataProject == "" {
		return ErrNoDataSource
	}
	if c.LocalDataDir == "" && c.ImageBucket == "" {
		return ErrNoBucket
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %v", c.FetchTimeout)
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("upload_timeout must be positive, got %v", c.UploadTimeout)
	}
	if c.UploadChunkSize < 0 {
		return fmt.Errorf("upload_chunk_size must not be negative, got %d", c.UploadChunkSize)
	}
	return nil
}

// Local reports whether the embedded store is in use.
func (c *Config) Local() bool {
	return c.LocalDataDir != ""
}
