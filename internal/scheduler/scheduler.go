package scheduler

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexrad-fleet/levelii-ingest/internal/appconfig"
	"github.com/nexrad-fleet/levelii-ingest/internal/bufferpool"
	"github.com/nexrad-fleet/levelii-ingest/internal/clock"
	"github.com/nexrad-fleet/levelii-ingest/internal/metrics"
	"github.com/nexrad-fleet/levelii-ingest/internal/objectstore"
	"github.com/nexrad-fleet/levelii-ingest/internal/stationstate"
	"github.com/nexrad-fleet/levelii-ingest/internal/storagecodec"
)

// DefaultBucket is the bucket name used when the caller doesn't
// configure one explicitly.
const DefaultBucket = "noaa-nexrad-level2"

// ErrShutdownInProgress is returned by operations that observe the
// stop flag before doing any work (spec §7 ShutdownInProgress).
var ErrShutdownInProgress = errors.New("scheduler: shutdown in progress")

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// pools bundles the reconfigurable concurrency knobs: a buffer pool
// plus the fetch worker count currently in effect. Discovery
// concurrency is bounded per-pass by a semaphore sized from the live
// config, since discovery scans are short-lived and don't need
// standing goroutines. Replacing a pools value is how the scheduler
// implements spec §4.6 reconfiguration: build a new one, swap it in
// under the state lock, then tear down the old buffer pool
// cooperatively.
type pools struct {
	buffers      *bufferpool.Pool
	fetchWorkers int
	stopFetch    chan struct{}
}

// Scheduler drives discovery, fetch, and cleanup loops over a set of
// monitored stations (spec §4.6).
type Scheduler struct {
	store     objectstore.Store
	storage   *storagecodec.Store
	stations  *stationstate.Store
	metrics   *metrics.Metrics
	clock     clock.Clock
	bucket    string
	statePath string

	stateMu sync.RWMutex // guards cfg and pools, per spec §5 state_mutex_
	cfg     *appconfig.Config
	p       *pools

	activeScans *activeScanSet

	discoveryQueue chan DiscoveryBatch

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Scheduler. Callers must call Start to begin the
// discovery/fetch/cleanup loops.
func New(cfg *appconfig.Config, store objectstore.Store, storage *storagecodec.Store, stations *stationstate.Store, m *metrics.Metrics, clk clock.Clock, statePath string) *Scheduler {
	s := &Scheduler{
		store:          store,
		storage:        storage,
		stations:       stations,
		metrics:        m,
		clock:          clk,
		bucket:         DefaultBucket,
		statePath:      statePath,
		cfg:            cfg,
		activeScans:    newActiveScanSet(),
		discoveryQueue: make(chan DiscoveryBatch, 1024),
	}
	s.p = s.buildPools(cfg)
	return s
}

func (s *Scheduler) buildPools(cfg *appconfig.Config) *pools {
	return &pools{
		buffers:      bufferpool.New(cfg.BufferPoolSize, cfg.BufferSizeBytes),
		fetchWorkers: cfg.FetcherThreadPoolSize,
		stopFetch:    make(chan struct{}),
	}
}

// Start launches the discovery loop, the cleanup loop, and the
// current pools' worker goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	s.stateMu.RLock()
	p := s.p
	s.stateMu.RUnlock()

	s.startFetchWorkers(ctx, p)

	s.wg.Add(2)
	go s.discoveryLoop(ctx)
	go s.cleanupLoop(ctx)
}

// Stop sets the cooperative stop flag and waits for all loops and
// pool workers to exit (spec §5 shutdown sequence).
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.wg.Wait()
}

func (s *Scheduler) config() *appconfig.Config {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.cfg
}

// Reconfigure atomically replaces the scheduler's config. If any
// pool-affecting field changed, both pools are rebuilt: the old pools'
// stop channels are closed so in-flight workers exit after their
// current task, the old buffer pool is torn down so outstanding
// handles remain valid until released, and new workers start against
// the new pools (spec §4.6 "Reconfiguration").
func (s *Scheduler) Reconfigure(ctx context.Context, newCfg *appconfig.Config) error {
	if s.stopped.Load() {
		return ErrShutdownInProgress
	}
	if err := newCfg.Validate(); err != nil {
		return err
	}

	s.stateMu.Lock()
	oldCfg := s.cfg
	oldPools := s.p
	rebuild := !oldCfg.PoolDimensionsEqual(newCfg)

	s.cfg = newCfg
	if rebuild {
		s.p = s.buildPools(newCfg)
	}
	newPools := s.p
	s.stateMu.Unlock()

	if err := appconfig.Save(s.configPath(), newCfg); err != nil {
		log.Printf("scheduler: persist config: %v", err)
	}

	if rebuild {
		close(oldPools.stopFetch)
		oldPools.buffers.Teardown()
		s.startFetchWorkers(ctx, newPools)
	}
	return nil
}

func (s *Scheduler) configPath() string {
	return filepath.Join(filepath.Dir(s.statePath), "config.json")
}

// StationStatistics is one station's snapshot within a Statistics
// response.
type StationStatistics struct {
	LastProcessedKey string    `json:"last_processed_key"`
	FramesFetched    int64     `json:"frames_fetched"`
	FramesFailed     int64     `json:"frames_failed"`
	LastFetchTime    time.Time `json:"last_fetch_timestamp"`
	LastFrameTime    time.Time `json:"last_frame_timestamp"`
}

// Statistics is a JSON-serializable snapshot of pipeline health,
// useful to an out-of-scope admin surface without this package taking
// an HTTP dependency of its own.
type Statistics struct {
	Stations       map[string]StationStatistics `json:"stations"`
	ActiveScans    int                           `json:"active_scans"`
	DiscoveryQueue int                           `json:"discovery_queue_depth"`
}

// Statistics returns a snapshot of current station counters, active
// scan count, and discovery queue depth.
func (s *Scheduler) Statistics() Statistics {
	snapshot := Statistics{
		Stations:       make(map[string]StationStatistics),
		ActiveScans:    s.activeScans.Len(),
		DiscoveryQueue: len(s.discoveryQueue),
	}
	for station, st := range s.stations.All() {
		snapshot.Stations[station] = StationStatistics{
			LastProcessedKey: st.LastProcessedKey,
			FramesFetched:    st.FramesFetched,
			FramesFailed:     st.FramesFailed,
			LastFetchTime:    st.LastFetchTime,
			LastFrameTime:    st.LastFrameTime,
		}
	}
	return snapshot
}

func (s *Scheduler) startFetchWorkers(ctx context.Context, p *pools) {
	for i := 0; i < p.fetchWorkers; i++ {
		s.wg.Add(1)
		go s.fetchWorker(ctx, p)
	}
}

func (s *Scheduler) discoveryLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(secondsToDuration(s.config().ScanIntervalSeconds))
	defer ticker.Stop()

	s.runDiscoveryPass(ctx)
	for {
		if s.stopped.Load() {
			return
		}
		select {
		case <-ticker.Chan():
			s.runDiscoveryPass(ctx)
		case <-time.After(pollInterval):
		}
		if s.stopped.Load() {
			return
		}
	}
}

func (s *Scheduler) runDiscoveryPass(ctx context.Context) {
	cfg := s.config()
	stations := s.resolveStations(ctx, cfg)

	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.DiscoveryParallelism)
	for _, station := range stations {
		if s.stopped.Load() {
			break
		}
		guard, ok := s.activeScans.tryAcquire(station)
		if !ok {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(station string, guard *scanGuard) {
			defer wg.Done()
			defer guard.Release()
			defer func() { <-sem }()
			s.metrics.ActiveScans.Set(float64(s.activeScans.Len()))
			s.scanOneStation(ctx, station, cfg)
		}(station, guard)
	}
	wg.Wait()

	if err := s.stations.Save(); err != nil {
		log.Printf("scheduler: persist station state: %v", err)
	}
}

// resolveStations expands the "ALL" sentinel for this pass only; the
// configured set itself is left untouched (spec §4.6).
func (s *Scheduler) resolveStations(ctx context.Context, cfg *appconfig.Config) []string {
	hasAll := false
	var fixed []string
	for _, st := range cfg.MonitoredStations {
		if st == appconfig.AllStations {
			hasAll = true
			continue
		}
		fixed = append(fixed, st)
	}
	if !hasAll {
		return fixed
	}

	day := s.clock.Now().UTC().Format("20060102")
	dayRoot := day[0:4] + "/" + day[4:6] + "/" + day[6:8] + "/"
	all, err := expandAllStations(ctx, s.store, dayRoot)
	if err != nil {
		log.Printf("scheduler: ALL station expansion failed: %v", err)
		return fixed
	}
	return all
}

func (s *Scheduler) scanOneStation(ctx context.Context, station string, cfg *appconfig.Config) {
	day := s.clock.Now().UTC().Format("20060102")
	prefix := dayPrefix(station, day)
	cursor := s.stations.Get(station).LastProcessedKey

	result, err := scanStation(ctx, s.store, s.bucket, station, prefix, cursor, cfg.MaxFramesPerStation, cfg.CatchupEnabled)
	if err != nil {
		log.Printf("scheduler: discovery for %s failed: %v", station, err)
		return
	}
	if !result.HasNewKeys {
		return
	}

	s.stations.AdvanceCursor(station, result.NewCursor)

	for _, batch := range chunkBatches(station, result.Items) {
		select {
		case s.discoveryQueue <- batch:
			s.metrics.DiscoveryQueueDepth.Set(float64(len(s.discoveryQueue)))
		case <-time.After(pollInterval):
			if s.stopped.Load() {
				return
			}
		}
	}
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(secondsToDuration(s.config().CleanupIntervalSeconds))
	defer ticker.Stop()

	for {
		if s.stopped.Load() {
			return
		}
		select {
		case <-ticker.Chan():
			s.runCleanupPass()
		case <-time.After(pollInterval):
		}
		if s.stopped.Load() {
			return
		}
	}
}

func (s *Scheduler) runCleanupPass() {
	cfg := s.config()
	if !cfg.AutoCleanupEnabled {
		return
	}
	for _, station := range cfg.MonitoredStations {
		if station == appconfig.AllStations {
			continue
		}
		for _, product := range cfg.Products {
			if err := s.storage.Retain(station, product); err != nil {
				log.Printf("scheduler: retention for %s/%s failed: %v", station, product, err)
			}
		}
	}
}
