package config

import (
	"fmt"
	"strings"

	"github.com/law-makers/cartelera/internal/engine/extract"
	"github.com/law-makers/cartelera/internal/store"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
)

func validate(c *Config) error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items must be >= 0")
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.ImageMinDelay < 0 || c.ImageMaxDelay < c.ImageMinDelay {
		return fmt.Errorf("image delays must satisfy 0 <= image_min_delay <= image_max_delay")
	}
	if c.SubmitStagger < 0 {
		return fmt.Errorf("submit stagger must be >= 0")
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be > 0")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		return fmt.Errorf("image quality must be between 1 and 100")
	}
	if c.PosterWidth < 0 {
		return fmt.Errorf("poster width must be >= 0")
	}
	if c.ImageRPS <= 0 || c.ImageBurst < 1 {
		return fmt.Errorf("image rate limit must be > 0 with burst >= 1")
	}
	if c.ImageRetries < 1 {
		return fmt.Errorf("image retries must be >= 1")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output dir must be set")
	}
	for name, u := range map[string]string{"base_url": c.BaseURL, "catalog_url": c.CatalogURL} {
		if err := urlutil.ValidateURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}
	if c.Database.Enabled() {
		driver, err := store.NormalizeDriver(c.Database.Driver)
		if err != nil {
			return err
		}
		c.Database.Driver = driver
	}
	if _, err := extract.DefaultTable().WithOverrides(c.Selectors); err != nil {
		return err
	}
	return nil
}

// Table returns the default selector table with configured overrides
func (c *Config) Table() (extract.Table, error) {
	return extract.DefaultTable().WithOverrides(c.Selectors)
}
