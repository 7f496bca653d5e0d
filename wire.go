//go:build wireinject
// +build wireinject

package main

import (
	"moonlace-media/aurora/aurora-media-gate-server/pkg/client"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/gate"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/library"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/stream"

	"github.com/google/wire"
)

func Setup() *Server {
	wire.Build(wire.NewSet(
		ProvideServer,
		ProvideApplication,
		config.ProvideConfig,
		infra.ProvideLoggerFactory,
		gate.ProvideViewingGate,
		gate.ProvideDownloadGate,
		library.ProvideLibrary,
		stream.ProvideManager,
		stream.ProvideRelay,
		client.ProvideHub,
	))
	return nil
}
