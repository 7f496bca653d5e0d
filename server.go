package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Server struct {
	application *Application
	server      *http.Server
	logger      *zap.SugaredLogger
}

func ProvideServer(application *Application, loggerFactory *infra.LoggerFactory) *Server {
	logger := loggerFactory.Create("Server").Sugar()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRequestID: true,
		LogStatus:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Infof("%v %v id[%v] status[%v] latency[%vms]", v.Method, v.URI, v.RequestID, v.Status, v.Latency.Milliseconds())
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	e.PUT("/debug", func(c echo.Context) error {
		infra.LoggerLevel.SetLevel(zapcore.DebugLevel)
		logger.Info("debug logging enabled")
		return c.NoContent(http.StatusOK)
	})

	e.DELETE("/debug", func(c echo.Context) error {
		infra.LoggerLevel.SetLevel(zapcore.InfoLevel)
		logger.Info("debug logging disabled")
		return c.NoContent(http.StatusOK)
	})

	e.POST("/api/queue/join", application.HandleJoinQueue)
	e.GET("/api/queue/check/:ticketId", application.HandleCheckTicket)
	e.GET("/api/queue/status", application.HandleQueueStatus)

	e.GET("/videos/:filename", application.HandleWatchVideo)
	e.GET("/download/:filename", application.HandleDownload)
	e.GET("/api/download-status", application.HandleDownloadStatus)

	e.GET("/api/videos", application.HandleVideos)
	e.GET("/api/images", application.HandleImages)
	e.GET("/api/public", application.HandlePublicFiles)

	e.GET("/api/streams", application.HandleStreams)
	e.GET("/api/rtmp/streams", application.HandleRtmpStreams)
	e.GET("/api/rtmp/worker-status", application.HandleWorkerStatus)

	e.GET("/ws/stats", application.HandleWsStats)

	// HLS playlists and segments produced by the ingest processes.
	e.Static("/streams", application.rtspManager.OutputDir())

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "6969"
	}

	return &Server{
		application: application,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%v", port),
			Handler: e,
		},
		logger: logger,
	}
}

func (s *Server) Run() {
	s.logger.Infof("server running application")
	s.application.Run()

	go func() {
		s.logger.Infof("server starts listening on addr[%v]", s.server.Addr)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Infof("shutting down")
	s.application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(err)
	}
}
