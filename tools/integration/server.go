package integration

import (
	"fmt"
	"net"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distributedio/hiredis/context"
	"go.uber.org/zap"
)

//Server is an in-process redis server speaking enough of the protocol to
//exercise a client: strings, transactions, pub/sub and monitor
type Server struct {
	lis    net.Listener
	nextID int64

	mu       sync.Mutex
	store    map[string][]byte
	channels map[string]map[*conn]struct{}
	patterns map[string]map[*conn]struct{}
	monitors map[*conn]struct{}
	conns    map[*conn]struct{}
}

//New a server instance
func New() *Server {
	return &Server{
		store:    make(map[string][]byte),
		channels: make(map[string]map[*conn]struct{}),
		patterns: make(map[string]map[*conn]struct{}),
		monitors: make(map[*conn]struct{}),
		conns:    make(map[*conn]struct{}),
	}
}

//Serve the redis requests
func (s *Server) Serve(lis net.Listener) error {
	zap.L().Info("integration server start", zap.String("addr", lis.Addr().String()))
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	for {
		nc, err := lis.Accept()
		if err != nil {
			zap.L().Debug("server accept failed", zap.String("addr", lis.Addr().String()), zap.Error(err))
			return err
		}
		id := atomic.AddInt64(&s.nextID, 1)
		addr := nc.RemoteAddr()
		cc := newConn(s, context.NewConnContext(id, addr.Network(), addr.String(), "server"), nc)

		s.mu.Lock()
		s.conns[cc] = struct{}{}
		s.mu.Unlock()

		go func(cc *conn) {
			if err := cc.serve(); err != nil {
				zap.L().Debug("serve conn failed", zap.String("addr", cc.ctx.Addr),
					zap.Int64("clientid", cc.ctx.ID), zap.Error(err))
			}
			s.forget(cc)
		}(cc)
	}
}

// ListenAndServe serves on a specified address
func (s *Server) ListenAndServe(network, addr string) error {
	lis, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Addr returns the listening address
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lis.Addr()
}

//Stop the server and drop every connection
func (s *Server) Stop() error {
	s.mu.Lock()
	err := s.lis.Close()
	for cc := range s.conns {
		cc.close()
	}
	s.mu.Unlock()
	return err
}

// Kick drops every client connection, the listener stays open
func (s *Server) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cc := range s.conns {
		cc.close()
	}
}

func (s *Server) forget(cc *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, cc)
	delete(s.monitors, cc)
	for _, subs := range []map[string]map[*conn]struct{}{s.channels, s.patterns} {
		for name, set := range subs {
			delete(set, cc)
			if len(set) == 0 {
				delete(subs, name)
			}
		}
	}
}

func (s *Server) subscribe(subs map[string]map[*conn]struct{}, name string, cc *conn) {
	set, ok := subs[name]
	if !ok {
		set = make(map[*conn]struct{})
		subs[name] = set
	}
	set[cc] = struct{}{}
}

func (s *Server) unsubscribe(subs map[string]map[*conn]struct{}, name string, cc *conn) {
	if set, ok := subs[name]; ok {
		delete(set, cc)
		if len(set) == 0 {
			delete(subs, name)
		}
	}
}

// publish delivers msg to channel and pattern subscribers and returns the receiver count
func (s *Server) publish(channel string, msg []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for cc := range s.channels[channel] {
		cc.push(arrayOf(bulk("message"), bulk(channel), bulk(string(msg))))
		n++
	}
	for pattern, set := range s.patterns {
		if ok, _ := path.Match(pattern, channel); !ok {
			continue
		}
		for cc := range set {
			cc.push(arrayOf(bulk("pmessage"), bulk(pattern), bulk(channel), bulk(string(msg))))
			n++
		}
	}
	return n
}

// feedMonitors sends a command line to every monitoring connection but the sender
func (s *Server) feedMonitors(from *conn, argv [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.monitors) == 0 {
		return
	}
	now := time.Now()
	line := fmt.Sprintf("%d.%06d [0 %s]", now.Unix(), now.Nanosecond()/1000, from.ctx.Addr)
	for _, arg := range argv {
		line += fmt.Sprintf(" %q", arg)
	}
	for cc := range s.monitors {
		if cc != from {
			cc.push(status(line))
		}
	}
}

// Run starts a server on a random local port and returns it once it accepts
// connections
func Run(network, addr string) (*Server, error) {
	lis, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	s := New()
	s.lis = lis
	go s.Serve(lis)
	return s, nil
}
