package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/capture"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/framebus"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

func configFromArgs(t *testing.T, args ...string) error {
	t.Helper()
	fs := flag.NewFlagSet("grabber", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, set, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	_, err = buildConfig(f, set)
	return err
}

func TestBuildConfigFlags(t *testing.T) {
	fs := flag.NewFlagSet("grabber", flag.ContinueOnError)
	f, set, err := parseFlags(fs, []string{"-d", "2", "-x", "320", "-yres", "200", "-j", "-credit-timeout", "300ms"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	cfg, err := buildConfig(f, set)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if cfg.Device != 2 || cfg.Bus.Width != 320 || cfg.Bus.Height != 200 {
		t.Errorf("device=%d resolution=%dx%d", cfg.Device, cfg.Bus.Width, cfg.Bus.Height)
	}
	if cfg.Bus.Compression != types.CompressionJPEG {
		t.Errorf("compression = %v", cfg.Bus.Compression)
	}
	if cfg.Bus.CreditTimeout != 300*time.Millisecond {
		t.Errorf("credit timeout = %v", cfg.Bus.CreditTimeout)
	}
}

func TestBuildConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing device", []string{"-x", "640", "-y", "480"}},
		{"zero resolution", []string{"-d", "0", "-x", "0"}},
		{"both codecs", []string{"-d", "0", "-l", "-j"}},
		{"codec and alias disagree", []string{"-d", "0", "-compression", "none", "-j"}},
		{"unknown codec", []string{"-d", "0", "-compression", "zstd"}},
		{"unknown source", []string{"-source", "file"}},
		{"unknown flag", []string{"-z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := configFromArgs(t, tt.args...); err == nil {
				t.Errorf("args %v accepted", tt.args)
			}
		})
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		args  []string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "pattern file",
			body: "source: pattern\nfps: 10\nbus:\n  width: 160\n  height: 120\n  compression: none\n",
			args: []string{"-y", "90", "-l"},
			check: func(t *testing.T, cfg *config.Config) {
				// File values survive unless a flag was given
				if cfg.Source != config.SourcePattern || cfg.FPS != 10 || cfg.Bus.Width != 160 {
					t.Errorf("file values lost: %+v", cfg)
				}
				if cfg.Bus.Height != 90 || cfg.Bus.Compression != types.CompressionLZ4 {
					t.Errorf("flag overrides lost: height=%d compression=%v", cfg.Bus.Height, cfg.Bus.Compression)
				}
			},
		},
		{
			name: "camera file without device",
			body: "bus:\n  compression: none\n",
			args: []string{"-d", "0", "-x", "320", "-y", "240"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Source != config.SourceCamera || cfg.Device != 0 {
					t.Errorf("source=%s device=%d", cfg.Source, cfg.Device)
				}
				if cfg.Bus.Width != 320 || cfg.Bus.Height != 240 || cfg.Bus.Compression != types.CompressionNone {
					t.Errorf("bus = %+v", cfg.Bus)
				}
			},
		},
		{
			name: "compression flag over file",
			body: "source: pattern\nbus:\n  compression: jpeg\n",
			args: []string{"-compression", "none"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Bus.Compression != types.CompressionNone {
					t.Errorf("compression = %v, want none", cfg.Bus.Compression)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "grabber.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			fs := flag.NewFlagSet("grabber", flag.ContinueOnError)
			f, set, err := parseFlags(fs, append([]string{"-config", path}, tt.args...))
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			cfg, err := buildConfig(f, set)
			if err != nil {
				t.Fatalf("buildConfig: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestCompressionFlag(t *testing.T) {
	tests := []struct {
		args []string
		want types.Compression
	}{
		{[]string{"-d", "0"}, types.CompressionLZ4},
		{[]string{"-d", "0", "-compression", "none"}, types.CompressionNone},
		{[]string{"-d", "0", "-compression", "jpeg", "-j"}, types.CompressionJPEG},
		{[]string{"-d", "0", "-lz4"}, types.CompressionLZ4},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			fs := flag.NewFlagSet("grabber", flag.ContinueOnError)
			f, set, err := parseFlags(fs, tt.args)
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			cfg, err := buildConfig(f, set)
			if err != nil {
				t.Fatalf("buildConfig: %v", err)
			}
			if cfg.Bus.Compression != tt.want {
				t.Errorf("compression = %v, want %v", cfg.Bus.Compression, tt.want)
			}
		})
	}
}

func newTestHandler() *statusHandler {
	cfg := framebus.DefaultConfig()
	bus := framebus.New(cfg, capture.NewPattern(cfg.Width, cfg.Height, 0), nil)
	bus.Metrics().FramesPublished.Add(7)
	bus.Metrics().FramesDropped.Add(2)
	return newStatusHandler(bus, cfg, "pattern")
}

func TestStatusJSON(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["frames_published"] != float64(7) || status["frames_dropped"] != float64(2) {
		t.Errorf("status = %v", status)
	}
	if status["compression"] != "lz4" || status["state"] != "idle" {
		t.Errorf("status = %v", status)
	}
}

func TestStatusProtobuf(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Accept", protobufContentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != protobufContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var status structpb.Struct
	if err := proto.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := status.Fields["frames_published"].GetNumberValue(); got != 7 {
		t.Errorf("frames_published = %v", got)
	}
	if got := status.Fields["region"].GetStringValue(); got != types.DefaultRegionName {
		t.Errorf("region = %q", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	// Never opened
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "grabber_frames_published_total 7") {
		t.Errorf("metrics output missing published counter:\n%s", body)
	}
}
