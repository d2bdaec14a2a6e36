// Command levelii-ingest runs the NEXRAD Level II fleet ingestion
// pipeline: discovery, fetch/decode, and cleanup loops over a
// configured set of radar stations. Flag parsing is intentionally
// minimal; runtime tuning is expected via config.json and the
// LEVELII_* environment overrides (spec §6).
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexrad-fleet/levelii-ingest/internal/appconfig"
	"github.com/nexrad-fleet/levelii-ingest/internal/clock"
	"github.com/nexrad-fleet/levelii-ingest/internal/metrics"
	"github.com/nexrad-fleet/levelii-ingest/internal/objectstore"
	"github.com/nexrad-fleet/levelii-ingest/internal/scheduler"
	"github.com/nexrad-fleet/levelii-ingest/internal/stationstate"
	"github.com/nexrad-fleet/levelii-ingest/internal/storagecodec"
)

var dataRoot = flag.String("data-root", "data/levelii", "Root directory for config, state, and artifacts")

func main() {
	flag.Parse()

	cfgPath := filepath.Join(*dataRoot, "config.json")
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	statePath := filepath.Join(*dataRoot, "state.json")
	stations, err := stationstate.Load(statePath)
	if err != nil {
		log.Fatalf("failed to load station state: %v", err)
	}

	storage := storagecodec.New(*dataRoot, cfg.MaxFramesPerStation)
	defer storage.Shutdown()

	// Metrics are registered for unit-testability via reg.Gather() only;
	// no HTTP exposition of this registry happens in this repo (admin
	// HTTP surface is out of scope, spec §1).
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := objectStoreFromEnv()

	s := scheduler.New(cfg, store, storage, stations, m, clock.Real(), statePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.Start(ctx)

	<-ctx.Done()
	log.Print("shutting down ingestion pipeline")

	s.Stop()
	if err := stations.Save(); err != nil {
		log.Printf("failed to persist station state: %v", err)
	}
	log.Print("graceful shutdown complete")
}

// objectStoreFromEnv builds the object-store client. A concrete cloud
// SDK binding is out of scope (spec non-goal); production deployments
// are expected to supply one via a build-tag-selected implementation
// of objectstore.Store.
func objectStoreFromEnv() objectstore.Store {
	return objectstore.NewMemStore(nil)
}
