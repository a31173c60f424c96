package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel          = "info"
	DefaultJSONLog           = false
	DefaultBaseURL           = "https://www.cinesa.es"
	DefaultCatalogPath       = "/peliculas/"
	DefaultItemPath          = "/peliculas/"
	DefaultOutputDir         = "data"
	DefaultWorkers           = 3
	DefaultMinDelay          = 3 * time.Second
	DefaultMaxDelay          = 5 * time.Second
	DefaultImageMinDelay     = 1 * time.Second
	DefaultImageMaxDelay     = 2 * time.Second
	DefaultSubmitStagger     = 500 * time.Millisecond
	DefaultNavigationTimeout = 30 * time.Second
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultHeadless          = true
	DefaultImageQuality      = 85
	DefaultPosterWidth       = 900
	DefaultImageRPS          = 2.0
	DefaultImageBurst        = 1
	DefaultImageRetries      = 3
	DefaultDatabaseDriver    = "sqlite"
	DefaultConfigFile        = "cartelera.toml"
	EnvPrefix                = "CARTELERA_"
)

// Default returns a Config populated with defaults
func Default() *Config {
	return &Config{
		LogLevel:          DefaultLogLevel,
		JSONLog:           DefaultJSONLog,
		BaseURL:           DefaultBaseURL,
		CatalogURL:        DefaultBaseURL + DefaultCatalogPath,
		ItemPath:          DefaultItemPath,
		OutputDir:         DefaultOutputDir,
		Workers:           DefaultWorkers,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		ImageMinDelay:     DefaultImageMinDelay,
		ImageMaxDelay:     DefaultImageMaxDelay,
		SubmitStagger:     DefaultSubmitStagger,
		NavigationTimeout: DefaultNavigationTimeout,
		HTTPTimeout:       DefaultHTTPTimeout,
		Headless:          DefaultHeadless,
		ImageQuality:      DefaultImageQuality,
		PosterWidth:       DefaultPosterWidth,
		ImageRPS:          DefaultImageRPS,
		ImageBurst:        DefaultImageBurst,
		ImageRetries:      DefaultImageRetries,
		Database:          Database{Driver: DefaultDatabaseDriver},
		Selectors:         map[string][]string{},
	}
}
