package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/distributedio/hiredis/conf"
	"go.uber.org/zap"
)

//Server exports pprof, the log level and the prometheus metrics over http
type Server struct {
	http        *http.Server
	stopTimeout time.Duration
}

//NewServer creates a status server from config
func NewServer(config *conf.Status) *Server {
	timeout := config.StopTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Server{
		http:        &http.Server{Handler: http.DefaultServeMux},
		stopTimeout: timeout,
	}
}

// Serve blocks serving lis until the server is stopped
func (s *Server) Serve(lis net.Listener) error {
	zap.L().Info("status server start", zap.String("addr", lis.Addr().String()))
	err := s.http.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

//Stop closes the listener and every connection at once
func (s *Server) Stop() error {
	if err := s.http.Close(); err != nil {
		zap.L().Error("status server stop failed", zap.Error(err))
		return err
	}
	zap.L().Info("status server stopped")
	return nil
}

//GracefulStop waits for in-flight requests, at most the configured stop timeout
func (s *Server) GracefulStop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		zap.L().Error("status server graceful stop failed", zap.Duration("timeout", s.stopTimeout), zap.Error(err))
		return err
	}
	zap.L().Info("status server stopped gracefully")
	return nil
}
