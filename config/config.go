package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port          string `envconfig:"PORT" default:"3000"`
		DeviceBaseURL string `envconfig:"DEVICE_BASE_URL" default:"https://192.168.1.167"`
		// Directories served and scanned by the proxy
		DistDir        string `envconfig:"DIST_DIR" default:"dist"`
		PublicDir      string `envconfig:"PUBLIC_DIR" default:"public"`
		ImagesDir      string `envconfig:"IMAGES_DIR" default:"public/images"`
		CacheDir       string `envconfig:"CACHE_DIR" default:"cache"`
		CacheIndexPath string `envconfig:"CACHE_INDEX_PATH" default:"cache/index.db"`
		StatsDBPath    string `envconfig:"STATS_DB_PATH" default:"cache/stats.db"`
		DefaultImage   string `envconfig:"DEFAULT_IMAGE" default:"cover1.jpg"`

		ImageFetchTimeoutSecs      int `envconfig:"IMAGE_FETCH_TIMEOUT_SECS" default:"5"`
		APIFetchTimeoutSecs        int `envconfig:"API_FETCH_TIMEOUT_SECS" default:"5"`
		RateLimitPerSecond         int `envconfig:"RATE_LIMIT_PER_SECOND" default:"20"`
		RateLimitBurstLimit        int `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"40"`
		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`     // Consecutive image fetch failures before circuit opens
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"60"` // Seconds to serve fallbacks before retrying the origin
		StatsSaveIntervalSecs      int `envconfig:"STATS_SAVE_INTERVAL_SECS" default:"60"`

		// Poller
		PollIntervalMs      int      `envconfig:"POLL_INTERVAL_MS" default:"2000"`
		LoadingTimeoutMs    int      `envconfig:"LOADING_TIMEOUT_MS" default:"5000"`
		ErrorThreshold      int      `envconfig:"ERROR_THRESHOLD" default:"3"`
		StandbyRotationSecs int      `envconfig:"STANDBY_ROTATION_SECS" default:"30"`
		KnownVendors        []string `envconfig:"KNOWN_VENDORS" default:"Tidal"`
		KnownArtHosts       []string `envconfig:"KNOWN_ART_HOSTS" default:"tidal.com,listen.tidal"`
		PollerBaseURL       string   `envconfig:"POLLER_BASE_URL" default:""` // empty polls this process on localhost
	}

	FeatureFlags struct {
		Poller     bool `envconfig:"FF_POLLER" default:"true"`
		ArtUpgrade bool `envconfig:"FF_ART_UPGRADE" default:"true"`
	}
}

// StatusURL returns the device URL for the given httpapi.asp command.
func (c Config) StatusURL(command string) string {
	return fmt.Sprintf("%s/httpapi.asp?command=%s", c.Configuration.DeviceBaseURL, command)
}

// PollerBase returns the proxy base URL the poller talks to.
func (c Config) PollerBase() string {
	if c.Configuration.PollerBaseURL != "" {
		return c.Configuration.PollerBaseURL
	}
	return "http://127.0.0.1:" + c.Configuration.Port
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}
