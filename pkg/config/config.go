package config

import (
	"flag"
	"time"
)

type Config struct {
	MaxViewers        *int
	SessionTtlSeconds *int

	BaseWaitSeconds     *int
	PerUserDelaySeconds *int
	MinWaitSeconds      *int

	MaxDownloads *int

	ReconcileIntervalSeconds *int
	AvgWaitWindowSize        *int

	NotifyStatsIntervalSeconds *int
	LibraryCacheSeconds        *int
	PingIntervalSeconds        *int
}

var CFG = &Config{
	MaxViewers:                 flag.Int("max-viewers", 3, "Max number of concurrent viewing sessions. Further viewers are queued and promoted FIFO as slots free up."),
	SessionTtlSeconds:          flag.Int("session-ttl-seconds", 1800, "Hard TTL of an active viewing session. A holder that never disconnects still loses its slot after this period."),
	BaseWaitSeconds:            flag.Int("base-wait-seconds", 2, "Base of the estimated wait reported to a queued viewer."),
	PerUserDelaySeconds:        flag.Int("per-user-delay-seconds", 1, "Additional estimated wait per viewer ahead in the queue."),
	MinWaitSeconds:             flag.Int("min-wait-seconds", 1, "Floor of the estimated wait reported to a queued viewer."),
	MaxDownloads:               flag.Int("max-downloads", 5, "Max number of concurrent download transfers. Further requests are queued and promoted when a transfer ends."),
	ReconcileIntervalSeconds:   flag.Int("reconcile-interval-seconds", 5, "Interval of the viewing gate sweep that expires stale sessions and promotes queued viewers."),
	AvgWaitWindowSize:          flag.Int("avg-wait-window-size", 50, "The size of the sliding window for calculating average time to admission."),
	NotifyStatsIntervalSeconds: flag.Int("notify-stats-interval-seconds", 5, "Interval to push gate snapshots to websocket feed clients."),
	LibraryCacheSeconds:        flag.Int("library-cache-seconds", 30, "How long media directory scans are cached before rescanning."),
	PingIntervalSeconds:        flag.Int("ping-interval-seconds", 30, "Send pings to websocket peers with this interval."),
}

func ProvideConfig() *Config {
	return CFG
}

func (c *Config) SessionTtl() time.Duration {
	return time.Duration(*c.SessionTtlSeconds) * time.Second
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(*c.ReconcileIntervalSeconds) * time.Second
}

func (c *Config) NotifyStatsInterval() time.Duration {
	return time.Duration(*c.NotifyStatsIntervalSeconds) * time.Second
}

func (c *Config) LibraryCacheTtl() time.Duration {
	return time.Duration(*c.LibraryCacheSeconds) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(*c.PingIntervalSeconds) * time.Second
}
