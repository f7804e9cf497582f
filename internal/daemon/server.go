// Package daemon shares one store between processes. The bbolt file can
// only be opened by a single process, so a daemon owns it and serves raw
// store operations over a unix socket; Client implements store.Store on
// the other end.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/leonardcser/memo/internal/store"
)

// Server serves a store.Store to daemon clients.
type Server struct {
	store store.Store
	log   *slog.Logger
	wg    sync.WaitGroup
}

// NewServer returns a Server for st. A nil log discards output.
func NewServer(st store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{store: st, log: log}
}

// Serve accepts connections on l until ctx is done or l fails, then waits
// for open connections to finish.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var conns sync.Map
	defer func() {
		conns.Range(func(c, _ any) bool {
			_ = c.(net.Conn).Close()
			return true
		})
		s.wg.Wait()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("accept failed", slog.Any("err", err))
			continue
		}
		conns.Store(conn, struct{}{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conns.Delete(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	id, err := gonanoid.New(8)
	if err != nil {
		id = "?"
	}
	log := s.log.With(slog.String("conn", id))
	log.Debug("connection opened")
	defer log.Debug("connection closed")

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handle(req)
		if !resp.OK {
			log.Debug("request failed", slog.String("op", req.Op), slog.String("err", resp.Error))
		}
		if err := enc.Encode(resp); err != nil {
			log.Warn("write failed", slog.Any("err", err))
			return
		}
	}
}

func (s *Server) handle(req Request) Response {
	switch req.Op {
	case OpGet:
		v, err := s.store.Get(req.Key)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Value: v}
	case OpPut:
		if len(req.Key) == 0 {
			return Response{Error: "empty key"}
		}
		if err := s.store.Put(req.Key, req.Value); err != nil {
			return failure(err)
		}
		return Response{OK: true}
	case OpDelete:
		if err := s.store.Delete(req.Key); err != nil {
			return failure(err)
		}
		return Response{OK: true}
	case OpScan:
		var entries []Pair
		if err := s.store.ForEach(func(k, v []byte) error {
			entries = append(entries, Pair{Key: k, Value: v})
			return nil
		}); err != nil {
			return failure(err)
		}
		return Response{OK: true, Entries: entries}
	default:
		return Response{Error: "unknown op"}
	}
}

func failure(err error) Response {
	resp := Response{Error: err.Error()}
	switch {
	case errors.Is(err, store.ErrNotFound):
		resp.Code = CodeNotFound
	case errors.Is(err, store.ErrClosed):
		resp.Code = CodeClosed
	}
	return resp
}
