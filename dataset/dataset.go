package dataset

import (
	"context"
	"slices"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/tilestream/checksum"
	"github.com/outofforest/tilestream/content"
	"github.com/outofforest/tilestream/event"
	"github.com/outofforest/tilestream/queue"
	"github.com/outofforest/tilestream/tileset"
	"github.com/outofforest/tilestream/types"
)

const notFound = -1

// TileState is the lifecycle state of the tile.
type TileState uint8

// Tile states.
const (
	Cold TileState = iota
	Warm
	Hot
)

func (s TileState) String() string {
	switch s {
	case Warm:
		return "Warm"
	case Hot:
		return "Hot"
	default:
		return "Cold"
	}
}

// WarmTile is the tile having its content requested.
type WarmTile struct {
	Tile types.TileIndex
	Key  types.ContentKey
}

// HotTile is the warm tile having visual representation.
type HotTile struct {
	Warm   int
	Handle Handle
}

// Selection lists candidate tiles for each lifecycle stage of the tick.
type Selection struct {
	WarmUp   []types.TileIndex
	HeatUp   []types.TileIndex
	Cooldown []types.TileIndex
	Freeze   []types.TileIndex
}

// Config stores data set configuration.
type Config struct {
	// Name identifies data set in events, logs and metrics.
	Name string

	// TileSet stores tiles managed by the data set. It is owned exclusively by the data set.
	TileSet *tileset.TileSet

	// Cache fetches content. It might be shared with other data sets.
	Cache *content.Cache

	// Locator computes content locators of tiles.
	Locator Locator

	// Renderer creates visual representations of hot tiles. Defaults to NopRenderer.
	Renderer Renderer

	// Events receives lifecycle notifications if set.
	Events *event.Channel
}

type completion struct {
	Tile       types.TileIndex
	Key        types.ContentKey
	Generation uint64
	Future     *content.Future
	Err        error
}

// New creates new data set.
func New(config Config) (*DataSet, error) {
	if config.TileSet == nil {
		return nil, errors.New("tile set is not configured")
	}
	if config.Cache == nil {
		return nil, errors.New("content cache is not configured")
	}
	if config.Locator == nil {
		return nil, errors.New("locator is not configured")
	}
	if config.Renderer == nil {
		config.Renderer = NopRenderer{}
	}

	capacity := config.TileSet.Capacity()
	ds := &DataSet{
		config:      config,
		warmLookup:  make([]int, capacity),
		hotLookup:   make([]int, capacity),
		awaiting:    make([]*content.Future, capacity),
		generations: make([]uint64, capacity),
		completions: queue.New[completion](),
	}
	resetLookup(ds.warmLookup)
	resetLookup(ds.hotLookup)

	return ds, nil
}

// DataSet drives tiles through cold, warm and hot states. All the methods except the ones of the completion queue
// must be called from single goroutine.
type DataSet struct {
	config Config

	warm []WarmTile
	hot  []HotTile

	warmLookup  []int
	hotLookup   []int
	awaiting    []*content.Future
	generations []uint64
	completions *queue.Queue[completion]
}

// Name returns name of the data set.
func (ds *DataSet) Name() string {
	return ds.config.Name
}

// TileSet returns the tile set managed by the data set.
func (ds *DataSet) TileSet() *tileset.TileSet {
	return ds.config.TileSet
}

// Completions returns channel signalled when fetch results are waiting to be processed.
func (ds *DataSet) Completions() <-chan struct{} {
	return ds.completions.Notify()
}

// Tick processes finished fetches and then runs warm-up, heat-up, cooldown and freeze stages.
func (ds *DataSet) Tick(ctx context.Context, sel Selection) error {
	ds.publish(event.UpdateTriggered, nil)
	ds.ProcessCompletions(ctx)

	if selected := lo.Uniq(slices.Concat(sel.WarmUp, sel.HeatUp)); len(selected) > 0 {
		ds.publish(event.TilesSelected, selected)
	}

	if err := ds.OnWarmUp(ctx, sel.WarmUp); err != nil {
		return err
	}
	if err := ds.OnHeatUp(ctx, sel.HeatUp); err != nil {
		return err
	}
	if err := ds.OnCooldown(ctx, sel.Cooldown); err != nil {
		return err
	}
	if err := ds.OnFreeze(ctx, sel.Freeze); err != nil {
		return err
	}

	ds.publish(event.ChangesScheduled, nil)
	ds.instrumentCounts()
	return nil
}

// OnWarmUp requests content of cold candidates and then tries to heat all the candidates up.
func (ds *DataSet) OnWarmUp(ctx context.Context, candidates []types.TileIndex) error {
	if err := ds.validate(candidates); err != nil {
		return err
	}

	ts := ds.config.TileSet
	var warmed []types.TileIndex
	for _, tile := range candidates {
		if ds.warmLookup[tile] != notFound {
			continue
		}

		locator, err := ds.config.Locator.Locate(ts, tile)
		if err != nil {
			return errors.Wrapf(err, "computing locator of tile %d failed", tile)
		}

		key := ds.config.Cache.Load(locator)
		if refs := ts.ContentsOf(tile); len(refs) != 1 || refs[0].Key != key {
			if err := ts.SetContents(tile, tileset.ContentRef{
				Key:    key,
				Volume: ts.Volumes.Refs[tile],
			}); err != nil {
				ds.config.Cache.TryEvict(key)
				return err
			}
		}

		ds.warm = append(ds.warm, WarmTile{Tile: tile, Key: key})
		ds.warmLookup[tile] = len(ds.warm) - 1
		warmed = append(warmed, tile)
	}

	if len(warmed) > 0 {
		logger.Get(ctx).Debug("Tiles warmed up", zap.String("dataSet", ds.config.Name), zap.Int("count", len(warmed)))
		ds.publish(event.TileWarmed, warmed)
	}

	return ds.OnHeatUp(ctx, candidates)
}

// OnHeatUp creates visual representations of warm candidates whose content is ready. For others, heat-up is
// retried once their content arrives.
func (ds *DataSet) OnHeatUp(ctx context.Context, candidates []types.TileIndex) error {
	if err := ds.validate(candidates); err != nil {
		return err
	}

	var heated []types.TileIndex
	for _, tile := range candidates {
		w := ds.warmLookup[tile]
		if w == notFound || ds.hotLookup[tile] != notFound {
			continue
		}

		key := ds.warm[w].Key
		if payload, exists := ds.config.Cache.TryGet(key); exists {
			if ds.heat(ctx, tile, w, payload) {
				heated = append(heated, tile)
			}
			continue
		}

		if ds.config.Cache.State(key) == content.StateFailed {
			ds.config.Cache.Reload(key)
		}
		ds.awaitContent(tile, key)
	}

	if len(heated) > 0 {
		ds.publish(event.TileHeated, heated)
	}
	return nil
}

// OnCooldown releases visual representations of candidates. Their content stays cached.
func (ds *DataSet) OnCooldown(ctx context.Context, candidates []types.TileIndex) error {
	if err := ds.validate(candidates); err != nil {
		return err
	}

	var cooled []types.TileIndex
	for _, tile := range candidates {
		h := ds.hotLookup[tile]
		if h == notFound {
			continue
		}

		ds.config.Renderer.Release(ds.hot[h].Handle)
		ds.removeHot(tile, h)
		cooled = append(cooled, tile)
	}

	if len(cooled) > 0 {
		logger.Get(ctx).Debug("Tiles cooled down", zap.String("dataSet", ds.config.Name), zap.Int("count", len(cooled)))
		ds.publish(event.TileCooled, cooled)
	}
	return nil
}

// OnFreeze cools candidates down and evicts their content, returning them to cold state.
func (ds *DataSet) OnFreeze(ctx context.Context, candidates []types.TileIndex) error {
	if err := ds.OnCooldown(ctx, candidates); err != nil {
		return err
	}

	var frozen []types.TileIndex
	for _, tile := range candidates {
		w := ds.warmLookup[tile]
		if w == notFound {
			continue
		}

		ds.config.Cache.TryEvict(ds.warm[w].Key)
		ds.removeWarm(tile, w)
		ds.generations[tile]++
		ds.awaiting[tile] = nil
		frozen = append(frozen, tile)
	}

	if len(frozen) > 0 {
		logger.Get(ctx).Debug("Tiles frozen", zap.String("dataSet", ds.config.Name), zap.Int("count", len(frozen)))
		ds.publish(event.TileFrozen, frozen)
	}
	return nil
}

// ProcessCompletions heats up tiles whose content arrived since the last call. Completions of tiles frozen or
// heated in the meantime are ignored. It returns the number of processed completions.
func (ds *DataSet) ProcessCompletions(ctx context.Context) int {
	var heated []types.TileIndex
	n := ds.completions.Drain(func(c completion) {
		if c.Generation != ds.generations[c.Tile] || ds.awaiting[c.Tile] != c.Future {
			ds.instrumentStaleCompletion()
			return
		}
		ds.awaiting[c.Tile] = nil

		w := ds.warmLookup[c.Tile]
		if w == notFound || ds.warm[w].Key != c.Key || ds.hotLookup[c.Tile] != notFound {
			ds.instrumentStaleCompletion()
			return
		}

		if c.Err != nil {
			logger.Get(ctx).Debug("Content of tile not available",
				zap.String("dataSet", ds.config.Name),
				zap.Uint32("tile", uint32(c.Tile)),
				zap.Error(c.Err))
			// Fetch has been restarted since this attempt failed.
			if ds.config.Cache.GetAsync(c.Key) != c.Future {
				ds.awaitContent(c.Tile, c.Key)
			}
			return
		}

		payload, exists := ds.config.Cache.TryGet(c.Key)
		if !exists {
			return
		}
		if ds.heat(ctx, c.Tile, w, payload) {
			heated = append(heated, c.Tile)
		}
	})

	if len(heated) > 0 {
		ds.publish(event.TileHeated, heated)
	}
	return n
}

// State returns lifecycle state of the tile.
func (ds *DataSet) State(tile types.TileIndex) TileState {
	if int(tile) >= len(ds.warmLookup) {
		return Cold
	}
	switch {
	case ds.hotLookup[tile] != notFound:
		return Hot
	case ds.warmLookup[tile] != notFound:
		return Warm
	default:
		return Cold
	}
}

// WarmTiles returns copy of the warm list.
func (ds *DataSet) WarmTiles() []WarmTile {
	return slices.Clone(ds.warm)
}

// HotTiles returns copy of the hot list.
func (ds *DataSet) HotTiles() []HotTile {
	return slices.Clone(ds.hot)
}

// Clear freezes all the tiles.
func (ds *DataSet) Clear(ctx context.Context) error {
	tiles := lo.Map(ds.warm, func(w WarmTile, _ int) types.TileIndex {
		return w.Tile
	})
	if err := ds.OnFreeze(ctx, tiles); err != nil {
		return err
	}
	ds.completions.Drain(func(completion) {})
	ds.instrumentCounts()
	return nil
}

func (ds *DataSet) heat(ctx context.Context, tile types.TileIndex, w int, payload content.Payload) bool {
	if !checksum.Verify(payload.Data, payload.Digest) {
		ds.instrumentCorruptedPayload()
		logger.Get(ctx).Error("Content of tile does not match its digest",
			zap.String("dataSet", ds.config.Name),
			zap.Uint32("tile", uint32(tile)),
			zap.String("locator", payload.Locator))
		return false
	}

	handle, err := ds.config.Renderer.Create(tile, payload)
	if err != nil {
		ds.instrumentRendererError()
		logger.Get(ctx).Error("Creating tile representation failed",
			zap.String("dataSet", ds.config.Name),
			zap.Uint32("tile", uint32(tile)),
			zap.Error(err))
		return false
	}

	ds.hot = append(ds.hot, HotTile{Warm: w, Handle: handle})
	ds.hotLookup[tile] = len(ds.hot) - 1
	return true
}

// awaitContent registers at most one continuation per tile and fetch attempt. Completions of attempts superseded
// by a reload are dropped.
func (ds *DataSet) awaitContent(tile types.TileIndex, key types.ContentKey) {
	f := ds.config.Cache.GetAsync(key)
	if ds.awaiting[tile] == f {
		return
	}
	ds.awaiting[tile] = f

	generation := ds.generations[tile]
	f.Then(func(_ content.Payload, err error) {
		ds.completions.Push(completion{
			Tile:       tile,
			Key:        key,
			Generation: generation,
			Future:     f,
			Err:        err,
		})
	})
}

func (ds *DataSet) removeHot(tile types.TileIndex, h int) {
	var moved int
	ds.hot, moved = SwapRemove(ds.hot, h)
	ds.hotLookup[tile] = notFound
	if moved != notFound {
		ds.hotLookup[ds.warm[ds.hot[h].Warm].Tile] = h
	}
}

func (ds *DataSet) removeWarm(tile types.TileIndex, w int) {
	var moved int
	ds.warm, moved = SwapRemove(ds.warm, w)
	ds.warmLookup[tile] = notFound
	if moved == notFound {
		return
	}

	movedTile := ds.warm[w].Tile
	ds.warmLookup[movedTile] = w
	for i := range ds.hot {
		if ds.hot[i].Warm == moved {
			ds.hot[i].Warm = w
		}
	}
}

func (ds *DataSet) validate(candidates []types.TileIndex) error {
	for _, tile := range candidates {
		if !ds.config.TileSet.Valid(tile) {
			return errors.Wrapf(tileset.ErrInvalidTile, "tile %d", tile)
		}
	}
	return nil
}

func (ds *DataSet) publish(kind event.Kind, tiles []types.TileIndex) {
	if ds.config.Events == nil {
		return
	}
	ds.config.Events.Publish(event.Event{
		Kind:    kind,
		Source:  ds.config.Name,
		TileSet: ds.config.TileSet.ID(),
		Tiles:   tiles,
	})
}

func resetLookup(lookup []int) {
	for i := range lookup {
		lookup[i] = notFound
	}
}
