package library

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var (
	ErrInvalidFilename = errors.New("invalid filename")
	ErrNotFound        = errors.New("file not found")
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ogg":  true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

const (
	videosCacheKey = "videos"
	imagesCacheKey = "images"
	publicCacheKey = "public"
)

type PublicFile struct {
	Name        string
	Size        int64
	IsDirectory bool
	Modified    time.Time
}

// Library lists local media. Directory scans are cheap but the UI
// polls the listing endpoints, so results are cached for a short TTL.
type Library struct {
	mediaDir  string
	publicDir string

	cache *gocache.Cache

	logger *zap.SugaredLogger
}

func ProvideLibrary(config *config.Config, loggerFactory *infra.LoggerFactory) *Library {
	mediaDir := os.Getenv("MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = "./media"
	}
	publicDir := os.Getenv("PUBLIC_DIR")
	if publicDir == "" {
		publicDir = "./public"
	}

	return &Library{
		mediaDir:  mediaDir,
		publicDir: publicDir,
		cache:     gocache.New(config.LibraryCacheTtl(), 2*config.LibraryCacheTtl()),
		logger:    loggerFactory.Create("Library").Sugar(),
	}
}

func (l *Library) MediaDir() string {
	return l.mediaDir
}

func (l *Library) Videos() ([]string, error) {
	return l.scanMedia(videosCacheKey, videoExtensions)
}

func (l *Library) Images() ([]string, error) {
	return l.scanMedia(imagesCacheKey, imageExtensions)
}

func (l *Library) scanMedia(cacheKey string, extensions map[string]bool) ([]string, error) {
	if cached, ok := l.cache.Get(cacheKey); ok {
		return cached.([]string), nil
	}

	entries, err := os.ReadDir(l.mediaDir)
	if err != nil {
		l.logger.Errorf("cannot read media dir[%v] %v", l.mediaDir, err)
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	l.cache.SetDefault(cacheKey, names)
	return names, nil
}

// PublicFiles lists the public dir with stat metadata, one level deep.
func (l *Library) PublicFiles() ([]*PublicFile, error) {
	if cached, ok := l.cache.Get(publicCacheKey); ok {
		return cached.([]*PublicFile), nil
	}

	entries, err := os.ReadDir(l.publicDir)
	if err != nil {
		l.logger.Errorf("cannot read public dir[%v] %v", l.publicDir, err)
		return nil, err
	}

	files := make([]*PublicFile, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, &PublicFile{
			Name:        entry.Name(),
			Size:        info.Size(),
			IsDirectory: entry.IsDir(),
			Modified:    info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	l.cache.SetDefault(publicCacheKey, files)
	return files, nil
}

// Resolve maps a requested filename to a path inside the media dir.
// Anything that could escape the dir is rejected before touching the
// filesystem.
func (l *Library) Resolve(filename string) (string, error) {
	if filename == "" ||
		strings.Contains(filename, "..") ||
		strings.ContainsAny(filename, `/\`) {
		return "", ErrInvalidFilename
	}

	path := filepath.Join(l.mediaDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}
