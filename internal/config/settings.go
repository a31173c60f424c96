package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// setter applies raw values for one key. Scalars arrive as one element.
type setter func(c *Config, vals []string) error

var settings = map[string]setter{
	"log_level":          stringField(func(c *Config) *string { return &c.LogLevel }),
	"json_log":           boolField(func(c *Config) *bool { return &c.JSONLog }),
	"base_url":           stringField(func(c *Config) *string { return &c.BaseURL }),
	"catalog_url":        stringField(func(c *Config) *string { return &c.CatalogURL }),
	"item_path":          stringField(func(c *Config) *string { return &c.ItemPath }),
	"item":               stringField(func(c *Config) *string { return &c.Item }),
	"workers":            intField(func(c *Config) *int { return &c.Workers }),
	"max_items":          intField(func(c *Config) *int { return &c.MaxItems }),
	"min_delay":          durationField(func(c *Config) *time.Duration { return &c.MinDelay }),
	"max_delay":          durationField(func(c *Config) *time.Duration { return &c.MaxDelay }),
	"submit_stagger":     durationField(func(c *Config) *time.Duration { return &c.SubmitStagger }),
	"navigation_timeout": durationField(func(c *Config) *time.Duration { return &c.NavigationTimeout }),
	"chrome_path":        stringField(func(c *Config) *string { return &c.ChromePath }),
	"headless":           boolField(func(c *Config) *bool { return &c.Headless }),
	"proxy":              stringField(func(c *Config) *string { return &c.Proxy }),
	"user_agents":        listField(func(c *Config) *[]string { return &c.UserAgents }),
	"http_timeout":       durationField(func(c *Config) *time.Duration { return &c.HTTPTimeout }),
	"image_min_delay":    durationField(func(c *Config) *time.Duration { return &c.ImageMinDelay }),
	"image_max_delay":    durationField(func(c *Config) *time.Duration { return &c.ImageMaxDelay }),
	"image_quality":      intField(func(c *Config) *int { return &c.ImageQuality }),
	"poster_width":       intField(func(c *Config) *int { return &c.PosterWidth }),
	"image_rps":          floatField(func(c *Config) *float64 { return &c.ImageRPS }),
	"image_burst":        intField(func(c *Config) *int { return &c.ImageBurst }),
	"image_retries":      intField(func(c *Config) *int { return &c.ImageRetries }),
	"listing_images":     boolField(func(c *Config) *bool { return &c.ListingImages }),
	"output_dir":         stringField(func(c *Config) *string { return &c.OutputDir }),
	"markdown":           boolField(func(c *Config) *bool { return &c.Markdown }),
	"database.driver":    stringField(func(c *Config) *string { return &c.Database.Driver }),
	"database.dsn":       stringField(func(c *Config) *string { return &c.Database.DSN }),
}

const selectorPrefix = "selectors."

// Keys returns every recognised configuration key
func Keys() []string {
	keys := make([]string, 0, len(settings)+1)
	for k := range settings {
		keys = append(keys, k)
	}
	keys = append(keys, selectorPrefix+"<field>")
	sort.Strings(keys)
	return keys
}

// Set applies one key. Selector keys replace that field's chain.
func (c *Config) Set(key string, vals []string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if field, ok := strings.CutPrefix(key, selectorPrefix); ok {
		if c.Selectors == nil {
			c.Selectors = map[string][]string{}
		}
		c.Selectors[field] = trimAll(vals)
		return nil
	}
	set, ok := settings[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := set(c, vals); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// loadFile overlays a TOML file. A missing file is an error only when the
// path was given explicitly.
func (c *Config) loadFile(path string, explicit bool) error {
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	flat := map[string][]string{}
	flatten("", raw, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.Set(k, flat[k]); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
	}
	c.Sources = append(c.Sources, "file:"+path)
	return nil
}

func flatten(prefix string, m map[string]interface{}, out map[string][]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch tv := v.(type) {
		case map[string]interface{}:
			flatten(key, tv, out)
		case []interface{}:
			vals := make([]string, 0, len(tv))
			for _, e := range tv {
				vals = append(vals, fmt.Sprint(e))
			}
			out[key] = vals
		default:
			out[key] = []string{fmt.Sprint(tv)}
		}
	}
}

// loadEnv reads envFile (or .env when present) into the process environment
// without overriding it, then applies CARTELERA_* variables. List values are
// separated by "|".
func (c *Config) loadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	applied := false
	for _, kv := range os.Environ() {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := envKey(strings.TrimPrefix(name, EnvPrefix))
		if _, known := settings[key]; !known && !strings.HasPrefix(key, selectorPrefix) {
			continue
		}
		if err := c.Set(key, strings.Split(val, "|")); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		applied = true
	}
	if applied {
		c.Sources = append(c.Sources, "env")
	}
	return nil
}

// envKey maps MIN_DELAY to min_delay and DATABASE_DSN to database.dsn
func envKey(name string) string {
	key := strings.ToLower(name)
	for _, table := range []string{"database", "selectors"} {
		if rest, ok := strings.CutPrefix(key, table+"_"); ok {
			return table + "." + rest
		}
	}
	return key
}

// flagKeys maps command-line flags onto config keys
var flagKeys = map[string]string{
	"base-url":       "base_url",
	"catalog-url":    "catalog_url",
	"max":            "max_items",
	"workers":        "workers",
	"min-delay":      "min_delay",
	"max-delay":      "max_delay",
	"stagger":        "submit_stagger",
	"nav-timeout":    "navigation_timeout",
	"chrome-path":    "chrome_path",
	"headless":       "headless",
	"proxy":          "proxy",
	"user-agent":     "user_agents",
	"image-quality":  "image_quality",
	"poster-width":   "poster_width",
	"listing-images": "listing_images",
	"output":         "output_dir",
	"markdown":       "markdown",
	"db-driver":      "database.driver",
	"db-dsn":         "database.dsn",
	"json":           "json_log",
}

// loadFlags applies flags the user set explicitly
func (c *Config) loadFlags(cmd *cobra.Command) error {
	applied := false
	var firstErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if firstErr != nil {
			return
		}
		switch f.Name {
		case "verbose":
			if f.Value.String() == "true" {
				c.LogLevel = "debug"
			}
			applied = true
			return
		case "quiet":
			if f.Value.String() == "true" {
				c.LogLevel = "error"
			}
			applied = true
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		vals := []string{f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			vals = sv.GetSlice()
		}
		if err := c.Set(key, vals); err != nil {
			firstErr = fmt.Errorf("--%s: %w", f.Name, err)
			return
		}
		applied = true
	})
	if firstErr != nil {
		return firstErr
	}
	if applied {
		c.Sources = append(c.Sources, "flags")
	}
	return nil
}

func single(vals []string) (string, error) {
	if len(vals) != 1 {
		return "", fmt.Errorf("expected one value, got %d", len(vals))
	}
	return strings.TrimSpace(vals[0]), nil
}

func stringField(get func(*Config) *string) setter {
	return func(c *Config, vals []string) error {
		v, err := single(vals)
		if err != nil {
			return err
		}
		*get(c) = v
		return nil
	}
}

func boolField(get func(*Config) *bool) setter {
	return func(c *Config, vals []string) error {
		v, err := single(vals)
		if err != nil {
			return err
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*get(c) = b
		return nil
	}
}

func intField(get func(*Config) *int) setter {
	return func(c *Config, vals []string) error {
		v, err := single(vals)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*get(c) = n
		return nil
	}
}

func floatField(get func(*Config) *float64) setter {
	return func(c *Config, vals []string) error {
		v, err := single(vals)
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*get(c) = f
		return nil
	}
}

// durationField accepts Go durations ("1.5s") or plain numbers of seconds
func durationField(get func(*Config) *time.Duration) setter {
	return func(c *Config, vals []string) error {
		v, err := single(vals)
		if err != nil {
			return err
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*get(c) = time.Duration(secs * float64(time.Second))
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*get(c) = d
		return nil
	}
}

func listField(get func(*Config) *[]string) setter {
	return func(c *Config, vals []string) error {
		*get(c) = trimAll(vals)
		return nil
	}
}

func trimAll(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
