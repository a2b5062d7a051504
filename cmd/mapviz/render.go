package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/seuros/geoviz/src/backend"
	"github.com/seuros/geoviz/src/fetch"
	"github.com/seuros/geoviz/src/loader"
	"github.com/seuros/geoviz/src/logging"
	"github.com/seuros/geoviz/src/render"
)

func renderCommand(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	baseURLFlag := fs.String("base-url", os.Getenv("MAPVIZ_URL"), "Dashboard base URL (or set MAPVIZ_URL)")
	daemonFlag := fs.String("daemon", os.Getenv("MAPVIZ_DAEMON"), "Render daemon address (or set MAPVIZ_DAEMON; omit for dry run)")
	dataTypeFlag := fs.String("data-type", "cdr", "Dataset type to fetch")
	modeFlag := fs.String("mode", "markers", "Visualization mode")
	wktFlag := fs.String("wkt", "", "Geofence boundary as WKT POLYGON (geofence mode)")
	maxPointsFlag := fs.Int("max-points", 0, "Display cap override (0 uses defaults)")
	clusterRadiusFlag := fs.Float64("cluster-radius", 0, "Cluster aggregation radius in pixels")
	intensityFlag := fs.Float64("heatmap-intensity", 0, "Heatmap density multiplier")
	bucketFlag := fs.Duration("bucket", 0, "Timeline bucket width (e.g. 1h)")
	timeoutFlag := fs.Duration("timeout", 0, "Optional context timeout (e.g. 30s). 0 disables.")
	verboseFlag := fs.Bool("verbose", false, "Log render pipeline details")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &exitError{code: 0}
		}
		return usageErrorf(2, "%v", err)
	}

	if *baseURLFlag == "" {
		return usageErrorf(2, "Missing --base-url (or set MAPVIZ_URL)")
	}
	if !fetch.KnownDataType(*dataTypeFlag) {
		return usageErrorf(2, "Unknown --data-type %q (expected one of %v)", *dataTypeFlag, fetch.DataTypes)
	}
	mode, err := render.ParseMode(*modeFlag)
	if err != nil {
		return usageErrorf(2, "%v", err)
	}
	if mode == render.ModeGeofence && *wktFlag == "" {
		return usageErrorf(2, "Mode geofence requires --wkt")
	}

	ctx := context.Background()
	if *timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	logger := logging.Logger(&logging.NoOpLogger{})
	if *verboseFlag {
		logger = logging.NewConsoleLogger(logging.LogLevelDebug)
	}

	client, err := fetch.NewClient(&fetch.Config{BaseURL: *baseURLFlag, Logger: logger})
	if err != nil {
		return err
	}

	ps, err := client.MapData(ctx, *dataTypeFlag)
	if err != nil {
		return err
	}

	cfg := render.DefaultConfig()
	cfg.Logging.Logger = logger
	cfg.Logging.LogRenderTiming = *verboseFlag
	cfg.Logging.LogCacheEvents = *verboseFlag

	factory, remote, err := resolveBackend(ctx, *daemonFlag, logger)
	if err != nil {
		return err
	}

	var provider loader.Provider
	if remote != nil {
		provider = remote.ModuleProvider()
	}
	rt := render.NewRuntime(cfg, provider)
	rt.Datasets.Set(ps.DataType, ps)

	r := render.NewRenderer(rt, factory)
	if err := r.Initialize(ctx, "mapviz-cli"); err != nil {
		return err
	}
	defer func() { _ = r.Dispose() }()

	if remote != nil {
		rt.Monitor.Start()
		go pumpFrames(ctx, remote, rt)
	}

	opts := render.Options{
		GeofenceWKT:      *wktFlag,
		MaxPoints:        *maxPointsFlag,
		ClusterRadius:    *clusterRadiusFlag,
		HeatmapIntensity: *intensityFlag,
	}
	if *bucketFlag > 0 {
		opts.TimelineBucketSec = int64(*bucketFlag / time.Second)
	}

	start := time.Now()
	vis, err := r.RenderVisualization(ctx, ps, mode, opts)
	if err != nil {
		return err
	}

	fmt.Printf("mode=%s dataset=%s rendered=%d/%d truncated=%v time=%s\n",
		vis.Mode, ps.DataType, vis.Rendered, ps.Total, vis.Truncated,
		time.Since(start).Truncate(time.Millisecond))
	fmt.Printf("bounds: sw=(%.5f, %.5f) ne=(%.5f, %.5f)\n",
		vis.SW.Lat, vis.SW.Lon, vis.NE.Lat, vis.NE.Lon)
	if mode == render.ModeGeofence {
		fmt.Printf("points inside fence: %d\n", vis.GeofenceCount)
	}
	if mode == render.ModeTimeline {
		fmt.Printf("timeline frames: %d\n", vis.TimelineBuckets)
	}
	if hint := fetch.RelatedTypes(ps.DataType); len(hint) > 0 {
		fmt.Printf("related datasets: %v\n", hint)
	}
	return nil
}

// resolveBackend picks the remote daemon when an address is given and the
// in-memory fake otherwise, so the pipeline can run end to end offline.
func resolveBackend(ctx context.Context, daemon string, logger logging.Logger) (render.BackendFactory, *backend.Remote, error) {
	if daemon == "" {
		fmt.Fprintln(os.Stderr, "no --daemon given, rendering against the in-memory backend")
		return backend.FakeFactory(backend.NewFake()), nil, nil
	}

	remote, err := backend.NewRemote(ctx, &backend.RemoteConfig{Address: daemon, Logger: logger}, "mapviz-cli")
	if err != nil {
		return nil, nil, err
	}
	factory := render.BackendFactoryFunc(func(context.Context, string) (render.Backend, error) {
		return remote, nil
	})
	return factory, remote, nil
}

// pumpFrames forwards the daemon's frame counter into the performance
// monitor so Metrics reports real FPS while the CLI holds the surface.
func pumpFrames(ctx context.Context, remote *backend.Remote, rt *render.Runtime) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frames, err := remote.FrameStats(ctx)
			if err != nil {
				return
			}
			for i := int64(0); i < frames; i++ {
				rt.Monitor.FrameTick()
			}
		}
	}
}
