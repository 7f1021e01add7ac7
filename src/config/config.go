package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"character-hunter/src/screenshot"
)

const (
	ConfigPathEnvVar = "HUNTER_CONFIG"
	EnvFileEnvVar    = "CHARACTER_HUNTER"
	ledgerSuffix     = ".character_hunter.db"
)

// LoadOptions carry command-line overrides; they win over every other source.
type LoadOptions struct {
	ConfigPath     string
	DatasetDir     string
	DisableTray    bool
	EnableFileLog  bool
	AcceptLowQuery bool
}

type Config struct {
	DatasetDir string `yaml:"dataset_dir"`

	QueryRegion       screenshot.Region `yaml:"query_region"`
	WatchIntervalMS   int               `yaml:"watch_interval_ms"`
	QuerySimilarity   float64           `yaml:"query_similarity"`
	QueryMinLength    int               `yaml:"query_min_length"`
	QueryStableFrames int               `yaml:"query_stable_frames"`

	FreshnessSec        int  `yaml:"freshness_sec"`
	AcceptLowConfidence bool `yaml:"accept_low_confidence"`

	CaptureRadius    int `yaml:"capture_radius"`
	CaptureBudgetMS  int `yaml:"capture_budget_ms"`
	ClickCooldownMS  int `yaml:"click_cooldown_ms"`
	ClickMinDistance int `yaml:"click_min_distance"`

	DedupMethod    string  `yaml:"dedup_method"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
	DedupWindow    int     `yaml:"dedup_window"`
	DedupMaxAgeSec int     `yaml:"dedup_max_age_sec"`
	TargetSize     int     `yaml:"target_size"`
	ImageFormat    string  `yaml:"image_format"`

	WriteWorkers    int    `yaml:"write_workers"`
	WriteQueueSize  int    `yaml:"write_queue_size"`
	WriteDropPolicy string `yaml:"write_drop_policy"`

	LedgerPath        string `yaml:"ledger_path"`
	TesseractLang     string `yaml:"tesseract_lang"`
	EnableFileLogging bool   `yaml:"enable_file_logging"`
	EnableTray        bool   `yaml:"enable_tray"`
	PortStart         int    `yaml:"port_start"`
	PortEnd           int    `yaml:"port_end"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatasetDir:        "dataset",
		QueryRegion:       screenshot.Region{X: 0, Y: 0, Width: 1200, Height: 200},
		WatchIntervalMS:   750,
		QuerySimilarity:   0.85,
		QueryMinLength:    3,
		QueryStableFrames: 2,
		FreshnessSec:      120,
		CaptureRadius:     150,
		CaptureBudgetMS:   50,
		ClickCooldownMS:   500,
		ClickMinDistance:  20,
		DedupMethod:       "dhash",
		DedupThreshold:    0.9,
		DedupWindow:       16,
		DedupMaxAgeSec:    3600,
		TargetSize:        512,
		ImageFormat:       "png",
		WriteWorkers:      2,
		WriteQueueSize:    8,
		WriteDropPolicy:   "drop-newest",
		TesseractLang:     "eng",
		EnableTray:        true,
		PortStart:         49500,
		PortEnd:           49550,
	}
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in increasing priority:
	// 1) built-in defaults
	// 2) YAML policy file (--config or HUNTER_CONFIG)
	// 3) .env next to the executable, else the file named by CHARACTER_HUNTER,
	//    then the process environment
	// 4) command-line overrides
	cfg := Default()

	configPath := strings.TrimSpace(opts.ConfigPath)
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnvVar))
	}
	if configPath != "" {
		if err := loadYAML(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}
	applyEnv(cfg)

	if opts.DatasetDir != "" {
		cfg.DatasetDir = opts.DatasetDir
	}
	if opts.DisableTray {
		cfg.EnableTray = false
	}
	if opts.EnableFileLog {
		cfg.EnableFileLogging = true
	}
	if opts.AcceptLowQuery {
		cfg.AcceptLowConfidence = true
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = defaultLedgerPath(cfg.DatasetDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DatasetDir, validation.Required),
		validation.Field(&c.QueryRegion, validation.By(validRegion)),
		validation.Field(&c.WatchIntervalMS, validation.Required, validation.Min(50)),
		validation.Field(&c.QuerySimilarity, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.QueryMinLength, validation.Required, validation.Min(1)),
		validation.Field(&c.QueryStableFrames, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.FreshnessSec, validation.Required, validation.Min(1)),
		validation.Field(&c.CaptureRadius, validation.Required, validation.Min(8), validation.Max(2048)),
		validation.Field(&c.CaptureBudgetMS, validation.Required, validation.Min(1)),
		validation.Field(&c.ClickCooldownMS, validation.Min(0)),
		validation.Field(&c.ClickMinDistance, validation.Min(0)),
		validation.Field(&c.DedupMethod, validation.Required, validation.In("dhash", "histogram")),
		validation.Field(&c.DedupThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.DedupWindow, validation.Min(0)),
		validation.Field(&c.DedupMaxAgeSec, validation.Min(0)),
		validation.Field(&c.TargetSize, validation.Min(0), validation.Max(4096)),
		validation.Field(&c.ImageFormat, validation.Required, validation.In("png", "jpeg")),
		validation.Field(&c.WriteWorkers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.WriteQueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.WriteDropPolicy, validation.Required, validation.In("drop-newest", "drop-oldest")),
		validation.Field(&c.TesseractLang, validation.Required),
		validation.Field(&c.PortStart, validation.Required, validation.Min(1024), validation.Max(65535)),
		validation.Field(&c.PortEnd, validation.Required, validation.Min(c.PortStart), validation.Max(65535)),
	)
}

func validRegion(value interface{}) error {
	r, _ := value.(screenshot.Region)
	if r.Empty() {
		return fmt.Errorf("must have a positive width and height")
	}
	return nil
}

// Durations derived from the millisecond/second fields.
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalMS) * time.Millisecond
}
func (c *Config) Freshness() time.Duration { return time.Duration(c.FreshnessSec) * time.Second }
func (c *Config) CaptureBudget() time.Duration {
	return time.Duration(c.CaptureBudgetMS) * time.Millisecond
}
func (c *Config) ClickCooldown() time.Duration {
	return time.Duration(c.ClickCooldownMS) * time.Millisecond
}
func (c *Config) DedupMaxAge() time.Duration { return time.Duration(c.DedupMaxAgeSec) * time.Second }

// defaultLedgerPath puts the catalog beside the dataset root ("dataset" ->
// "dataset.character_hunter.db"), outside the tree exporters read.
func defaultLedgerPath(datasetDir string) string {
	return filepath.Clean(datasetDir) + ledgerSuffix
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func applyEnv(cfg *Config) {
	setString("DATASET_DIR", &cfg.DatasetDir)
	if v := os.Getenv("QUERY_REGION"); v != "" {
		if r, err := ParseRegion(v); err == nil {
			cfg.QueryRegion = r
		} else {
			log.Printf("Config: ignoring QUERY_REGION: %v", err)
		}
	}
	setInt("WATCH_INTERVAL_MS", &cfg.WatchIntervalMS)
	setFloat("QUERY_SIMILARITY", &cfg.QuerySimilarity)
	setInt("QUERY_MIN_LENGTH", &cfg.QueryMinLength)
	setInt("QUERY_STABLE_FRAMES", &cfg.QueryStableFrames)
	setInt("FRESHNESS_SEC", &cfg.FreshnessSec)
	setBool("ACCEPT_LOW_CONFIDENCE", &cfg.AcceptLowConfidence)
	setInt("CAPTURE_RADIUS", &cfg.CaptureRadius)
	setInt("CAPTURE_BUDGET_MS", &cfg.CaptureBudgetMS)
	setInt("CLICK_COOLDOWN_MS", &cfg.ClickCooldownMS)
	setInt("CLICK_MIN_DISTANCE", &cfg.ClickMinDistance)
	setString("DEDUP_METHOD", &cfg.DedupMethod)
	setFloat("DEDUP_THRESHOLD", &cfg.DedupThreshold)
	setInt("DEDUP_WINDOW", &cfg.DedupWindow)
	setInt("DEDUP_MAX_AGE_SEC", &cfg.DedupMaxAgeSec)
	setInt("TARGET_SIZE", &cfg.TargetSize)
	setString("IMAGE_FORMAT", &cfg.ImageFormat)
	setInt("WRITE_WORKERS", &cfg.WriteWorkers)
	setInt("WRITE_QUEUE_SIZE", &cfg.WriteQueueSize)
	setString("WRITE_DROP_POLICY", &cfg.WriteDropPolicy)
	setString("LEDGER_PATH", &cfg.LedgerPath)
	setString("TESSERACT_LANG", &cfg.TesseractLang)
	setBool("ENABLE_FILE_LOGGING", &cfg.EnableFileLogging)
	setBool("ENABLE_TRAY", &cfg.EnableTray)
	setInt("HUNTER_PORT_START", &cfg.PortStart)
	setInt("HUNTER_PORT_END", &cfg.PortEnd)
}

// ParseRegion parses "x,y,width,height".
func ParseRegion(s string) (screenshot.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return screenshot.Region{}, fmt.Errorf("region %q: expected x,y,width,height", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return screenshot.Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		n[i] = v
	}
	return screenshot.Region{X: n[0], Y: n[1], Width: n[2], Height: n[3]}, nil
}

func setString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Config: ignoring %s=%q: not an integer", key, v)
		return
	}
	*dst = n
}

func setFloat(key string, dst *float64) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Config: ignoring %s=%q: not a number", key, v)
		return
	}
	*dst = f
}

func setBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}
