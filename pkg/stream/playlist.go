package stream

import (
	"bufio"
	"errors"
	"os"

	"github.com/livepeer/m3u8"
)

var errNotMediaPlaylist = errors.New("not a media playlist")

type PlaylistInfo struct {
	Segments       uint
	TargetDuration float64
}

// probePlaylist reads an HLS playlist produced by a transcoder process
// and reports segment count and target duration. A missing or still
// empty playlist is not an error to the caller; status handlers treat
// it as "no segments yet".
func probePlaylist(path string) (*PlaylistInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, listType, err := m3u8.DecodeFrom(bufio.NewReader(f), true)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, errNotMediaPlaylist
	}

	pl := p.(*m3u8.MediaPlaylist)
	return &PlaylistInfo{
		Segments:       pl.Count(),
		TargetDuration: pl.TargetDuration,
	}, nil
}
