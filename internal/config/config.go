// Package config implements spec §6's "Configuration (collaborator)":
// the model.* and system.* settings, their documented defaults, and
// the load/reload error policy of spec §7 (fatal on --startup, warn
// and keep previous values on reload). Parsed with gopkg.in/yaml.v3,
// matching the rest of the example pack's preference for a real
// marshalling library over hand-rolled key=value parsing.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wasteddreams/preheat/internal/perr"
)

// Model holds spec §6's "model.*" section.
type Model struct {
	Cycle          float64 `yaml:"cycle"`
	UseCorrelation bool    `yaml:"usecorrelation"`
	MinSize        int64   `yaml:"minsize"`
	MemTotalPct    float64 `yaml:"memtotal"`
	MemFreePct     float64 `yaml:"memfree"`
	MemCachedPct   float64 `yaml:"memcached"`
	HitstatsWindow float64 `yaml:"hitstats_window"`
}

// System holds spec §6's "system.*" section.
type System struct {
	DoScan            bool   `yaml:"doscan"`
	DoPredict         bool   `yaml:"dopredict"`
	Autosave          float64 `yaml:"autosave"`
	MapPrefix         string `yaml:"mapprefix"`
	ExePrefix         string `yaml:"exeprefix"`
	MaxProcs          int    `yaml:"maxprocs"`
	SortStrategy      string `yaml:"sortstrategy"`
	ExcludedPatterns  string `yaml:"excluded_patterns"`
	UserAppPaths      string `yaml:"user_app_paths"`
}

// Config is the full parsed configuration (spec §6).
type Config struct {
	Model  Model  `yaml:"model"`
	System System `yaml:"system"`
}

// defaultMapPrefix/defaultExePrefix/defaultExcluded/defaultUserApps
// mirror the original daemon's confkeys defaults: system libraries and
// binaries are mappable (locale data and /usr/share excluded), and the common desktop
// application install roots seed user_app_paths out of the box.
const (
	defaultMapPrefix        = "/usr/lib;/usr/lib64;/lib;/lib64;/usr/bin;/usr/sbin;!/usr/lib/locale;!/usr/share"
	defaultExePrefix        = "/usr/bin;/usr/sbin;/usr/local/bin;/opt"
	defaultExcludedPatterns = "/usr/lib/systemd;/usr/libexec"
	defaultUserAppPaths     = "/usr/bin;/usr/local/bin;/opt"
)

// Default returns the configuration spec §6's table specifies when no
// file or key overrides it.
func Default() Config {
	return Config{
		Model: Model{
			Cycle:          20,
			UseCorrelation: true,
			MinSize:        2_000_000,
			MemTotalPct:    -10,
			MemFreePct:     50,
			MemCachedPct:   0,
			HitstatsWindow: 3600,
		},
		System: System{
			DoScan:           true,
			DoPredict:        true,
			Autosave:         3600,
			MapPrefix:        defaultMapPrefix,
			ExePrefix:        defaultExePrefix,
			MaxProcs:         30,
			SortStrategy:     "block",
			ExcludedPatterns: defaultExcludedPatterns,
			UserAppPaths:     defaultUserAppPaths,
		},
	}
}

// Load reads and parses path on top of Default(), so a file overriding
// only a handful of keys still yields a fully populated Config. A
// missing file is not an error: Default() is returned as-is (first-ever
// startup with no config file yet).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, perr.Wrap(perr.Config, "config.Load", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, perr.Wrap(perr.Config, "config.Load", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the documented domains spec §6 implies: cycle > 0,
// minsize, autosave and maxprocs non-negative, and a known sortstrategy.
// The signed memory percentages are not range-checked.
func Validate(cfg Config) error {
	if cfg.Model.Cycle <= 0 {
		return perr.New(perr.Config, "config.Validate", "model.cycle must be > 0")
	}
	if cfg.Model.MinSize < 0 {
		return perr.New(perr.Config, "config.Validate", "model.minsize must be >= 0")
	}
	if cfg.System.Autosave < 0 {
		return perr.New(perr.Config, "config.Validate", "system.autosave must be >= 0")
	}
	if cfg.System.MaxProcs < 0 {
		return perr.New(perr.Config, "config.Validate", "system.maxprocs must be >= 0")
	}
	switch cfg.System.SortStrategy {
	case "none", "path", "inode", "block", "":
	default:
		return perr.New(perr.Config, "config.Validate", "system.sortstrategy must be one of none|path|inode|block")
	}
	return nil
}
