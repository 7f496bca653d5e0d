package stream

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultRtmpPort = 1935

// Relay ingests pushed RTMP streams. One listening ffmpeg process per
// configured stream key, each on its own port starting at RTMP_PORT,
// transcoding whatever gets published there into HLS. Keys act as the
// only publish authorization. A key that is not configured has no
// listener, so nothing to publish to.
type Relay struct {
	mu      sync.Mutex
	ingests map[string]*ingest

	outputDir  string
	ffmpegPath string
	basePort   int

	logger *zap.SugaredLogger

	done     chan struct{}
	stopOnce sync.Once
}

type ingest struct {
	id        string
	key       string
	port      int
	cmd       *exec.Cmd
	status    string
	startedAt time.Time
	restarts  int
}

// StreamKeysFromEnv reads the comma separated RTMP_STREAM_KEYS list.
func StreamKeysFromEnv() []string {
	raw := os.Getenv("RTMP_STREAM_KEYS")
	if raw == "" {
		return nil
	}
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func ProvideRelay(loggerFactory *infra.LoggerFactory) *Relay {
	outputDir := os.Getenv("STREAM_OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "./streams"
	}
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	basePort := defaultRtmpPort
	if raw := os.Getenv("RTMP_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			basePort = port
		}
	}

	return &Relay{
		ingests:    make(map[string]*ingest),
		outputDir:  outputDir,
		ffmpegPath: ffmpegPath,
		basePort:   basePort,
		logger:     loggerFactory.Create("RtmpRelay").Sugar(),
		done:       make(chan struct{}),
	}
}

func (r *Relay) Run() {
	keys := StreamKeysFromEnv()
	if len(keys) == 0 {
		r.logger.Infof("no rtmp stream keys configured, relay disabled")
		return
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		r.logger.Errorf("cannot create output dir[%v] %v", r.outputDir, err)
		return
	}

	for i, key := range keys {
		in := &ingest{
			id:     uuid.NewString(),
			key:    key,
			port:   r.basePort + i,
			status: StatusStarting,
		}

		r.mu.Lock()
		r.ingests[key] = in
		r.mu.Unlock()

		r.logger.Infof("rtmp ingest listening for key[%v] on port[%v]", key, in.port)
		go r.supervise(in)
	}
}

// supervise mirrors the rtsp side, but a publisher disconnecting is a
// normal end of broadcast, so the listener restarts without a retry
// budget and the restart counter only tracks churn.
func (r *Relay) supervise(in *ingest) {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		cmd := r.ingestCmd(in)
		if err := cmd.Start(); err != nil {
			r.logger.Errorf("cannot start ffmpeg for key[%v] %v", in.key, err)
			r.setStatus(in, StatusFailed, nil)
			return
		}
		r.setStatus(in, StatusLive, cmd)

		err := cmd.Wait()

		select {
		case <-r.done:
			r.setStatus(in, StatusStopped, nil)
			return
		default:
		}

		r.logger.Infof("key[%v] publisher gone (%v), listener restarting", in.key, err)
		r.setStatus(in, StatusReconnecting, nil)

		select {
		case <-r.done:
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *Relay) setStatus(in *ingest, status string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in.status = status
	in.cmd = cmd
	if status == StatusLive {
		in.startedAt = time.Now()
	}
	if status == StatusReconnecting {
		in.restarts++
	}
}

func (r *Relay) ingestCmd(in *ingest) *exec.Cmd {
	playlist := filepath.Join(r.outputDir, "live_"+in.key+".m3u8")
	segments := filepath.Join(r.outputDir, "live_"+in.key+"_%03d.ts")

	return exec.Command(r.ffmpegPath,
		"-listen", "1",
		"-i", fmt.Sprintf("rtmp://0.0.0.0:%d/live/%s", in.port, in.key),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "10",
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", segments,
		playlist,
	)
}

func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		defer r.mu.Unlock()
		for key, in := range r.ingests {
			if in.cmd != nil && in.cmd.Process != nil {
				r.logger.Infof("stopping ingest key[%v]", key)
				_ = in.cmd.Process.Kill()
			}
			in.status = StatusStopped
		}
	})
}

// ValidKey reports whether a stream key has a configured listener.
func (r *Relay) ValidKey(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ingests[key]
	return ok
}

type IngestStatus struct {
	Key            string
	Status         string
	Playlist       string
	UptimeSeconds  int
	Restarts       int
	Segments       uint
	TargetDuration float64
}

func (r *Relay) Status() []*IngestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]*IngestStatus, 0, len(r.ingests))
	for _, in := range r.ingests {
		status := &IngestStatus{
			Key:      in.key,
			Status:   in.status,
			Playlist: "/streams/live_" + in.key + ".m3u8",
			Restarts: in.restarts,
		}
		if in.status == StatusLive {
			status.UptimeSeconds = int(time.Since(in.startedAt).Seconds())
		}
		if info, err := probePlaylist(filepath.Join(r.outputDir, "live_"+in.key+".m3u8")); err == nil {
			status.Segments = info.Segments
			status.TargetDuration = info.TargetDuration
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Key < statuses[j].Key })
	return statuses
}

type WorkerStatus struct {
	Running       bool
	ActiveStreams int
	IngestPort    int
}

func (r *Relay) Worker() *WorkerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, in := range r.ingests {
		if in.status == StatusLive {
			active++
		}
	}
	return &WorkerStatus{
		Running:       len(r.ingests) > 0,
		ActiveStreams: active,
		IngestPort:    r.basePort,
	}
}
