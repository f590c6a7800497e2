// Package config defines rollcall's configuration and its defaults.
package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DBPath is the sqlite file holding enrolled identities.
	DBPath string `koanf:"db_path"`
	// ModelsDir holds the dlib model files.
	ModelsDir string `koanf:"models_dir"`
	// FacesDir receives enrollment reference photos.
	FacesDir    string `koanf:"faces_dir"`
	ReportDir   string `koanf:"report_dir"`
	SnapshotDir string `koanf:"snapshot_dir"`
	// RegisterPath is the CSV attendance register; empty disables it.
	RegisterPath string `koanf:"register_path"`
	// DebugImage is where the annotated photo is written.
	DebugImage string `koanf:"debug_image"`

	MatchThreshold           float64 `koanf:"match_threshold"`
	NearMissThreshold        float64 `koanf:"near_miss_threshold"`
	PhotoConfidencePrecision int     `koanf:"photo_confidence_precision"`
	LiveConfidencePrecision  int     `koanf:"live_confidence_precision"`

	// MaxWidth caps the photo width before detection.
	MaxWidth     int `koanf:"max_width"`
	PhotoPadding int `koanf:"photo_padding"`
	LivePadding  int `koanf:"live_padding"`
	Upsample     int `koanf:"upsample"`
	LiveUpsample int `koanf:"live_upsample"`

	// Cadence runs live inference on every Cadence-th frame.
	Cadence   int     `koanf:"cadence"`
	LiveScale float64 `koanf:"live_scale"`
	// RegionWorkers bounds concurrent face searches within one image.
	RegionWorkers int `koanf:"region_workers"`

	// HTTPAddr is the live server listen address, e.g. ":8000".
	HTTPAddr string `koanf:"http_addr"`
}

// New returns a Config with the defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		DBPath:                   "data/rollcall.db",
		ModelsDir:                "models",
		FacesDir:                 "data/registered_faces",
		ReportDir:                ".",
		SnapshotDir:              ".",
		RegisterPath:             "",
		DebugImage:               "attendance_debug.jpg",
		MatchThreshold:           0.55,
		NearMissThreshold:        0.65,
		PhotoConfidencePrecision: 2,
		LiveConfidencePrecision:  1,
		MaxWidth:                 1920,
		PhotoPadding:             20,
		LivePadding:              5,
		Upsample:                 2,
		LiveUpsample:             0,
		Cadence:                  5,
		LiveScale:                0.5,
		RegionWorkers:            1,
		HTTPAddr:                 ":8000",
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.MatchThreshold <= 0:
		return fmt.Errorf("%w: match_threshold must be positive", ErrInvalidConfig)
	case c.NearMissThreshold < c.MatchThreshold:
		return fmt.Errorf("%w: near_miss_threshold must not be below match_threshold", ErrInvalidConfig)
	case c.PhotoConfidencePrecision < 0 || c.LiveConfidencePrecision < 0:
		return fmt.Errorf("%w: confidence precision must not be negative", ErrInvalidConfig)
	case c.MaxWidth < 0:
		return fmt.Errorf("%w: max_width must not be negative", ErrInvalidConfig)
	case c.PhotoPadding < 0 || c.LivePadding < 0:
		return fmt.Errorf("%w: padding must not be negative", ErrInvalidConfig)
	case c.Upsample < 0 || c.LiveUpsample < 0:
		return fmt.Errorf("%w: upsample must not be negative", ErrInvalidConfig)
	case c.Cadence < 1:
		return fmt.Errorf("%w: cadence must be at least 1", ErrInvalidConfig)
	case c.LiveScale <= 0 || c.LiveScale > 1:
		return fmt.Errorf("%w: live_scale must be in (0, 1]", ErrInvalidConfig)
	case c.RegionWorkers < 1:
		return fmt.Errorf("%w: region_workers must be at least 1", ErrInvalidConfig)
	}
	return nil
}
