package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/config"
)

// Server wraps http.Server with optional TLS
type Server struct {
	httpServer *http.Server
	certFile   string
	keyFile    string
	logger     logrus.FieldLogger
}

// NewServer creates a server from the HTTP settings. TLS is enabled when
// both a certificate and a key file are configured.
func NewServer(cfg config.HTTPConfig, handler http.Handler, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	server := &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	s := &Server{
		httpServer: server,
		certFile:   cfg.TLSCertFile,
		keyFile:    cfg.TLSKeyFile,
		logger:     logger,
	}
	if s.tlsEnabled() {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.X25519,
				tls.CurveP256,
			},
		}
	}
	return s
}

func (s *Server) tlsEnabled() bool {
	return s.certFile != "" && s.keyFile != ""
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	var err error
	if s.tlsEnabled() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTPS server")
		err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
