// Package backend provides rendering backends for the geoviz renderer: a
// remote client that drives a render daemon over pooled TCP connections,
// and an in-memory fake for tests and dry runs.
package backend

import (
	"encoding/json"

	"github.com/seuros/geoviz/src/render"
)

// Wire protocol: one JSON request, one JSON response per exchange, encoded
// with json.Encoder/Decoder over a pooled connection. The daemon keeps the
// connection open between exchanges.

// Operation names accepted by the render daemon.
const (
	opCreate       = "create"
	opReady        = "ready"
	opAddSource    = "add_source"
	opRemoveSource = "remove_source"
	opAddLayer     = "add_layer"
	opRemoveLayer  = "remove_layer"
	opFitBounds    = "fit_bounds"
	opLoadModule   = "load_module"
	opFrameStats   = "frame_stats"
	opPollEvents   = "poll_events"
	opClose        = "close"
	opCountInFence = "count_in_polygon"
)

// request is a single daemon command.
type request struct {
	Op        string            `json:"op"`
	Container string            `json:"container,omitempty"`
	Name      string            `json:"name,omitempty"`
	Layer     *render.LayerSpec `json:"layer,omitempty"`
	// Data carries a GeoJSON FeatureCollection for add_source and a WKT
	// polygon string for count_in_polygon.
	Data json.RawMessage `json:"data,omitempty"`
	SW   *coordinate     `json:"sw,omitempty"`
	NE   *coordinate     `json:"ne,omitempty"`
}

type coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// response is the daemon's answer to one request.
type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Ready reports base-map load completion for the ready op.
	Ready bool `json:"ready,omitempty"`
	// Frames is the frame count since the previous frame_stats exchange.
	Frames int64 `json:"frames,omitempty"`
	// Count answers count_in_polygon.
	Count int `json:"count,omitempty"`
	// Version identifies the module materialized by load_module.
	Version string `json:"version,omitempty"`
	// Events carries pending click events for poll_events.
	Events []clickEvent `json:"events,omitempty"`
}

type clickEvent struct {
	Layer string     `json:"layer"`
	At    coordinate `json:"at"`
}
