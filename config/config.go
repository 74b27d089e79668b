package config

import (
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/outofforest/tilestream/dataset"
	"github.com/outofforest/tilestream/quadtree"
	"github.com/outofforest/tilestream/source"
	"github.com/outofforest/tilestream/types"
	"github.com/outofforest/tilestream/volume"
)

// EnvPrefix is the prefix of environment variables overriding configuration.
const EnvPrefix = "TILESTREAM_"

// Supported area kinds.
const (
	AreaBox    = "box"
	AreaRegion = "region"
)

// Supported locator kinds.
const (
	LocatorXYZ = "xyz"
	LocatorWMS = "wms"
)

// Config is the configuration of tilestream.
type Config struct {
	Name         string        `yaml:"name"         env:"NAME"`
	Depth        int           `yaml:"depth"        env:"DEPTH"`
	MaxDepth     int           `yaml:"maxDepth"     env:"MAX_DEPTH"`
	RootError    float64       `yaml:"rootError"    env:"ROOT_ERROR"`
	Workers      int           `yaml:"workers"      env:"WORKERS"`
	TickInterval time.Duration `yaml:"tickInterval" env:"TICK_INTERVAL"`
	MetricsAddr  string        `yaml:"metricsAddr"  env:"METRICS_ADDR"`
	Area         Area          `yaml:"area"         envPrefix:"AREA_"`
	Locator      Locator       `yaml:"locator"      envPrefix:"LOCATOR_"`
	Sources      Sources       `yaml:"sources"      envPrefix:"SOURCE_"`
}

// Area describes the area of interest.
type Area struct {
	Kind string  `yaml:"kind" env:"KIND"`
	MinX float64 `yaml:"minX" env:"MIN_X"`
	MinY float64 `yaml:"minY" env:"MIN_Y"`
	MinZ float64 `yaml:"minZ" env:"MIN_Z"`
	MaxX float64 `yaml:"maxX" env:"MAX_X"`
	MaxY float64 `yaml:"maxY" env:"MAX_Y"`
	MaxZ float64 `yaml:"maxZ" env:"MAX_Z"`
}

// Volume returns bounding volume of the area. For regions X is the longitude and Y is the latitude.
func (a Area) Volume() volume.Volume {
	if a.Kind == AreaRegion {
		return volume.Region{
			West:      a.MinX,
			South:     a.MinY,
			East:      a.MaxX,
			North:     a.MaxY,
			MinHeight: a.MinZ,
			MaxHeight: a.MaxZ,
		}
	}
	return volume.FromTopLeftAndBottomRight(
		types.Vec3{X: a.MinX, Y: a.MinY, Z: a.MinZ},
		types.Vec3{X: a.MaxX, Y: a.MaxY, Z: a.MaxZ},
	)
}

// Locator configures how content locators of tiles are built.
type Locator struct {
	Kind        string   `yaml:"kind"        env:"KIND"`
	Template    string   `yaml:"template"    env:"TEMPLATE"`
	URL         string   `yaml:"url"         env:"URL"`
	Layers      []string `yaml:"layers"      env:"LAYERS"      envSeparator:","`
	Styles      []string `yaml:"styles"      env:"STYLES"      envSeparator:","`
	CRS         string   `yaml:"crs"         env:"CRS"`
	Format      string   `yaml:"format"      env:"FORMAT"`
	Width       int      `yaml:"width"       env:"WIDTH"`
	Height      int      `yaml:"height"      env:"HEIGHT"`
	Transparent bool     `yaml:"transparent" env:"TRANSPARENT"`
}

// Build creates the locator.
func (l Locator) Build() dataset.Locator {
	if l.Kind == LocatorWMS {
		return dataset.WMSLocator{
			URL:         l.URL,
			Layers:      l.Layers,
			Styles:      l.Styles,
			CRS:         l.CRS,
			Format:      l.Format,
			Width:       l.Width,
			Height:      l.Height,
			Transparent: l.Transparent,
		}
	}
	return dataset.XYZLocator{Template: l.Template}
}

// Sources configures content sources. Sources left empty are not registered.
type Sources struct {
	FileRoot    string             `yaml:"fileRoot"    env:"FILE_ROOT"`
	MBTiles     string             `yaml:"mbtiles"     env:"MBTILES"`
	HTTPTimeout time.Duration      `yaml:"httpTimeout" env:"HTTP_TIMEOUT"`
	Redis       source.RedisConfig `yaml:"redis"       envPrefix:"REDIS_"`
}

// Default returns default configuration.
func Default() Config {
	return Config{
		Name:         "tilestream",
		Depth:        4,
		MaxDepth:     quadtree.DefaultMaxDepth,
		Workers:      4,
		TickInterval: 100 * time.Millisecond,
		Area: Area{
			Kind: AreaBox,
			MaxX: 1024,
			MaxY: 1024,
		},
		Locator: Locator{
			Kind:     LocatorXYZ,
			Template: "file:///{z}/{x}/{y}.png",
		},
		Sources: Sources{
			FileRoot:    ".",
			HTTPTimeout: 10 * time.Second,
			Redis: source.RedisConfig{
				DialTimeout: 5 * time.Second,
			},
		},
	}
}

// Load loads configuration. Defaults are overridden by the YAML file, then by the variables of the env file and
// finally by the environment. Empty paths are skipped.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %q failed", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parsing config file %q failed", path)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "loading env file %q failed", envFile)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "parsing environment failed")
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize replaces empty settings with defaults.
func (c *Config) Normalize() {
	def := Default()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.Area.Kind == "" {
		c.Area.Kind = AreaBox
	}
	if c.Locator.Kind == "" {
		c.Locator.Kind = LocatorXYZ
	}
	if c.Sources.HTTPTimeout <= 0 {
		c.Sources.HTTPTimeout = def.Sources.HTTPTimeout
	}
}

// Validate verifies configuration.
func (c Config) Validate() error {
	if c.Depth < 0 {
		return errors.Wrapf(quadtree.ErrNegativeDepth, "depth: %d", c.Depth)
	}
	if c.MaxDepth > quadtree.MaxDepth {
		return errors.Wrapf(quadtree.ErrDepthTooLarge, "maximum depth %d exceeds %d", c.MaxDepth, quadtree.MaxDepth)
	}
	if c.Depth > c.MaxDepth {
		return errors.Wrapf(quadtree.ErrDepthTooLarge, "depth %d exceeds maximum %d", c.Depth, c.MaxDepth)
	}
	if c.RootError < 0 {
		return errors.Errorf("root error must not be negative: %f", c.RootError)
	}

	switch c.Area.Kind {
	case AreaBox, AreaRegion:
	default:
		return errors.Errorf("unsupported area kind %q", c.Area.Kind)
	}
	if volume.Degenerate(c.Area.Volume()) {
		return errors.Wrapf(quadtree.ErrMalformedArea, "area: %+v", c.Area)
	}

	switch c.Locator.Kind {
	case LocatorXYZ:
		if c.Locator.Template == "" {
			return errors.New("xyz locator requires template")
		}
	case LocatorWMS:
		if c.Locator.URL == "" {
			return errors.New("wms locator requires url")
		}
		if len(c.Locator.Layers) == 0 {
			return errors.New("wms locator requires at least one layer")
		}
	default:
		return errors.Errorf("unsupported locator kind %q", c.Locator.Kind)
	}

	return nil
}
