package tilestream

import (
	"context"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/tilestream/content"
	"github.com/outofforest/tilestream/dataset"
	"github.com/outofforest/tilestream/decode"
	"github.com/outofforest/tilestream/event"
	"github.com/outofforest/tilestream/quadtree"
	"github.com/outofforest/tilestream/source"
	"github.com/outofforest/tilestream/tileset"
	"github.com/outofforest/tilestream/volume"
)

// Config stores engine configuration.
type Config struct {
	// Name identifies the data set.
	Name string

	// Area is the area of interest covered by the tile tree.
	Area volume.Volume

	// Depth is the depth of the materialized quad tree.
	Depth int

	// MaxDepth caps Depth. Defaults to quadtree.DefaultMaxDepth and must not exceed quadtree.MaxDepth.
	MaxDepth int

	// RootError is the geometric error of the root tile. Defaults to the horizontal diagonal of the area.
	RootError float64

	// Locator computes content locators of tiles.
	Locator dataset.Locator

	// Renderer creates visual representations of hot tiles.
	Renderer dataset.Renderer

	// Fetcher downloads content. Ignored if SharedCache is set.
	Fetcher source.Fetcher

	// Decoder decodes content. Ignored if SharedCache is set.
	Decoder decode.Decoder

	// Workers is the number of concurrent fetches. Ignored if SharedCache is set.
	Workers int

	// SharedCache is the content cache shared with other engines. Content of identical locators is then fetched
	// once for all of them. Whoever created the cache is responsible for running it.
	SharedCache *content.Cache

	// Events is the channel receiving notifications. New channel is created if nil.
	Events *event.Channel
}

// New creates engine and materializes its tile tree.
func New(ctx context.Context, config Config) (*Engine, error) {
	if config.Depth < 0 {
		return nil, errors.Wrapf(quadtree.ErrNegativeDepth, "depth: %d", config.Depth)
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = quadtree.DefaultMaxDepth
	}
	if config.MaxDepth > quadtree.MaxDepth {
		return nil, errors.Wrapf(quadtree.ErrDepthTooLarge, "maximum depth %d exceeds %d", config.MaxDepth,
			quadtree.MaxDepth)
	}
	if config.Depth > config.MaxDepth {
		return nil, errors.Wrapf(quadtree.ErrDepthTooLarge, "depth %d exceeds maximum %d", config.Depth,
			config.MaxDepth)
	}
	if config.Events == nil {
		config.Events = event.New()
	}

	ts, err := tileset.New(tileset.Config{
		Capacity: quadtree.TileCount(config.Depth),
		Area:     config.Area,
	})
	if err != nil {
		return nil, err
	}

	if _, err := quadtree.Materialize(ctx, ts, quadtree.Config{
		Depth:     config.Depth,
		RootError: config.RootError,
		Events:    config.Events,
		Source:    config.Name,
	}); err != nil {
		return nil, err
	}

	cache := config.SharedCache
	if cache == nil {
		cache, err = content.New(content.Config{
			Fetcher: config.Fetcher,
			Decoder: config.Decoder,
			Workers: config.Workers,
		})
		if err != nil {
			return nil, err
		}
	}

	ds, err := dataset.New(dataset.Config{
		Name:     config.Name,
		TileSet:  ts,
		Cache:    cache,
		Locator:  config.Locator,
		Renderer: config.Renderer,
		Events:   config.Events,
	})
	if err != nil {
		return nil, err
	}

	logger.Get(ctx).Info("Engine created",
		zap.String("name", config.Name),
		zap.Stringer("tileSet", ts.ID()),
		zap.Int("depth", config.Depth),
		zap.Uint32("tiles", ts.Count()),
		zap.Bool("sharedCache", config.SharedCache != nil))

	return &Engine{
		config:   config,
		tileSet:  ts,
		cache:    cache,
		dataSet:  ds,
		ownCache: config.SharedCache == nil,
	}, nil
}

// Engine streams content of the tile tree covering the area of interest.
type Engine struct {
	config   Config
	tileSet  *tileset.TileSet
	cache    *content.Cache
	dataSet  *dataset.DataSet
	ownCache bool
}

// Run runs fetch workers of the engine's own cache. With shared cache it only waits for context to be canceled.
func (e *Engine) Run(ctx context.Context) error {
	if e.ownCache {
		return e.cache.Run(ctx)
	}
	<-ctx.Done()
	return errors.WithStack(ctx.Err())
}

// Tick applies the selection to the tile lifecycle.
func (e *Engine) Tick(ctx context.Context, sel dataset.Selection) error {
	return e.dataSet.Tick(ctx, sel)
}

// Completions returns channel signalled when fetched content waits to be processed by Tick.
func (e *Engine) Completions() <-chan struct{} {
	return e.dataSet.Completions()
}

// Clear freezes all the tiles and destroys the tile tree.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.dataSet.Clear(ctx); err != nil {
		return err
	}
	e.tileSet.Clear()
	logger.Get(ctx).Info("Engine cleared", zap.String("name", e.config.Name))
	return nil
}

// TileSet returns tile set of the engine.
func (e *Engine) TileSet() *tileset.TileSet {
	return e.tileSet
}

// DataSet returns lifecycle manager of the engine.
func (e *Engine) DataSet() *dataset.DataSet {
	return e.dataSet
}

// Cache returns content cache used by the engine.
func (e *Engine) Cache() *content.Cache {
	return e.cache
}

// Events returns event channel of the engine.
func (e *Engine) Events() *event.Channel {
	return e.config.Events
}
