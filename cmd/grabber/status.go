package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/framebus"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
)

const protobufContentType = "application/x-protobuf"

// statusHandler serves /status, /health and /metrics for a bus
type statusHandler struct {
	bus     *framebus.Bus
	cfg     framebus.Config
	source  string
	started time.Time
}

func newStatusHandler(bus *framebus.Bus, cfg framebus.Config, source string) *statusHandler {
	return &statusHandler{bus: bus, cfg: cfg, source: source, started: time.Now()}
}

// routes sets up HTTP routes
func (h *statusHandler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.bus.Metrics().Handler())
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/health", h.handleHealth)
	return mux
}

func (h *statusHandler) status() map[string]interface{} {
	st := h.bus.Stats()
	return map[string]interface{}{
		"state":             st.State.String(),
		"running":           st.Running,
		"source":            h.source,
		"region":            h.cfg.RegionName,
		"width":             h.cfg.Width,
		"height":            h.cfg.Height,
		"compression":       h.cfg.Compression.String(),
		"credit_timeout_ms": h.cfg.CreditTimeout.Milliseconds(),
		"frames_captured":   st.Captured,
		"frames_published":  st.Published,
		"frames_dropped":    st.Dropped,
		"capture_misses":    st.Misses,
		"oversize_frames":   st.Oversize,
		"frames_compressed": st.Compressed,
		"fallbacks":         st.Fallbacks,
		"current_slot":      st.CurrentSlot,
		"bytes_raw":         st.BytesRaw,
		"bytes_stored":      st.BytesStored,
		"compression_ratio": st.CompressionRatio,
		"uptime_seconds":    time.Since(h.started).Seconds(),
	}
}

// handleStatus returns bus counters as JSON, or as a protobuf Struct when
// the client asks for it
func (h *statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.status()

	if strings.Contains(r.Header.Get("Accept"), protobufContentType) {
		pbStatus, err := structpb.NewStruct(status)
		if err != nil {
			logger.Error("HTTP", "Protobuf status conversion error: %v", err)
			http.Error(w, "status encoding failed", http.StatusInternalServerError)
			return
		}
		data, err := proto.Marshal(pbStatus)
		if err != nil {
			logger.Error("HTTP", "Protobuf marshal error: %v", err)
			http.Error(w, "status encoding failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", protobufContentType)
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleHealth handles health check
func (h *statusHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := h.bus.IsRunning()
	w.Header().Set("Content-Type", "application/json")
	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  map[bool]string{true: "ok", false: "stopped"}[running],
		"running": running,
	})
}
