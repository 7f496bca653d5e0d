package stream

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"

	"go.uber.org/zap"
)

const (
	StatusStarting     = "starting"
	StatusLive         = "live"
	StatusReconnecting = "reconnecting"
	StatusFailed       = "failed"
	StatusStopped      = "stopped"

	maxReconnectAttempts = 5
	reconnectDelay       = 5 * time.Second
)

// Source is one RTSP camera or feed to pull from.
type Source struct {
	Id   string
	Url  string
	Name string
}

// SourcesFromEnv reads RTSP_STREAM_1..n and RTSP_NAME_1..n. The list
// stops at the first missing index.
func SourcesFromEnv() []*Source {
	var sources []*Source
	for index := 1; ; index++ {
		rawUrl := os.Getenv(fmt.Sprintf("RTSP_STREAM_%d", index))
		if rawUrl == "" {
			break
		}
		name := os.Getenv(fmt.Sprintf("RTSP_NAME_%d", index))
		if name == "" {
			name = fmt.Sprintf("Stream %d", index)
		}
		sources = append(sources, &Source{
			Id:   fmt.Sprintf("stream%d", index),
			Url:  rawUrl,
			Name: name,
		})
	}
	return sources
}

type pullStream struct {
	source    *Source
	cmd       *exec.Cmd
	status    string
	startedAt time.Time
	restarts  int
}

type StreamStatus struct {
	Id             string
	Name           string
	Status         string
	Playlist       string
	UptimeSeconds  int
	Restarts       int
	Segments       uint
	TargetDuration float64
}

// Manager pulls RTSP sources through ffmpeg child processes and turns
// them into HLS under the output dir. The processes are opaque. The
// manager only supervises them and reports status. Nothing here talks
// to the admission gates.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*pullStream

	outputDir  string
	ffmpegPath string

	logger *zap.SugaredLogger

	done     chan struct{}
	stopOnce sync.Once
}

func ProvideManager(loggerFactory *infra.LoggerFactory) *Manager {
	outputDir := os.Getenv("STREAM_OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "./streams"
	}
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	return &Manager{
		streams:    make(map[string]*pullStream),
		outputDir:  outputDir,
		ffmpegPath: ffmpegPath,
		logger:     loggerFactory.Create("RtspManager").Sugar(),
		done:       make(chan struct{}),
	}
}

func (m *Manager) OutputDir() string {
	return m.outputDir
}

func (m *Manager) Run() {
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		m.logger.Errorf("cannot create output dir[%v] %v", m.outputDir, err)
		return
	}

	for _, source := range SourcesFromEnv() {
		m.startStream(source)
	}
}

func (m *Manager) startStream(source *Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[source.Id]; ok {
		m.logger.Warnf("stream[%v] is already running", source.Id)
		return
	}

	ps := &pullStream{
		source: source,
		status: StatusStarting,
	}
	m.streams[source.Id] = ps

	m.logger.Infof("starting rtsp stream id[%v] name[%v] source[%v]", source.Id, source.Name, sanitizeUrl(source.Url))
	go m.supervise(ps)
}

// supervise keeps one ffmpeg process alive per source, restarting up
// to maxReconnectAttempts times before marking the stream failed.
func (m *Manager) supervise(ps *pullStream) {
	for attempt := 0; ; attempt++ {
		select {
		case <-m.done:
			return
		default:
		}

		cmd := m.pullCmd(ps.source)
		if err := cmd.Start(); err != nil {
			m.logger.Errorf("cannot start ffmpeg for stream[%v] %v", ps.source.Id, err)
			m.setStatus(ps, StatusFailed, nil)
			return
		}
		m.setStatus(ps, StatusLive, cmd)
		m.logger.Infof("stream[%v] live, pid[%v]", ps.source.Id, cmd.Process.Pid)

		err := cmd.Wait()

		select {
		case <-m.done:
			m.setStatus(ps, StatusStopped, nil)
			return
		default:
		}

		m.logger.Warnf("stream[%v] ffmpeg exited %v, attempt[%v]", ps.source.Id, err, attempt+1)
		if attempt+1 >= maxReconnectAttempts {
			m.setStatus(ps, StatusFailed, nil)
			m.logger.Errorf("stream[%v] gave up after %v attempts", ps.source.Id, maxReconnectAttempts)
			return
		}
		m.setStatus(ps, StatusReconnecting, nil)

		select {
		case <-m.done:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (m *Manager) setStatus(ps *pullStream, status string, cmd *exec.Cmd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps.status = status
	ps.cmd = cmd
	if status == StatusLive {
		ps.startedAt = time.Now()
	}
	if status == StatusReconnecting {
		ps.restarts++
	}
}

func (m *Manager) pullCmd(source *Source) *exec.Cmd {
	playlist := filepath.Join(m.outputDir, source.Id+".m3u8")
	segments := filepath.Join(m.outputDir, source.Id+"_%03d.ts")

	return exec.Command(m.ffmpegPath,
		"-rtsp_transport", "tcp",
		"-analyzeduration", "1000000",
		"-probesize", "1000000",
		"-i", source.Url,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-ar", "44100",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "10",
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", segments,
		playlist,
	)
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		defer m.mu.Unlock()
		for id, ps := range m.streams {
			if ps.cmd != nil && ps.cmd.Process != nil {
				m.logger.Infof("stopping stream[%v]", id)
				_ = ps.cmd.Process.Kill()
			}
			ps.status = StatusStopped
		}
	})
}

// Status reports every known stream, probing its playlist for live
// segment data when one exists.
func (m *Manager) Status() []*StreamStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]*StreamStatus, 0, len(m.streams))
	for _, ps := range m.streams {
		status := &StreamStatus{
			Id:       ps.source.Id,
			Name:     ps.source.Name,
			Status:   ps.status,
			Playlist: "/streams/" + ps.source.Id + ".m3u8",
			Restarts: ps.restarts,
		}
		if ps.status == StatusLive {
			status.UptimeSeconds = int(time.Since(ps.startedAt).Seconds())
		}
		if info, err := probePlaylist(filepath.Join(m.outputDir, ps.source.Id+".m3u8")); err == nil {
			status.Segments = info.Segments
			status.TargetDuration = info.TargetDuration
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Id < statuses[j].Id })
	return statuses
}

// sanitizeUrl scrubs credentials before a source url reaches the logs.
func sanitizeUrl(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return "<unparsable url>"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}
