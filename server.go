package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server owns the two transport listeners named in §4.1 and the shared Hub
// every connection dispatches against.
type Server struct {
	streamAddr  string
	wsAddr      string
	hub         *Hub
	idleTimeout time.Duration
}

// NewServer constructs a Server bound to the given addresses.
func NewServer(streamAddr, wsAddr string, hub *Hub, idleTimeout time.Duration) *Server {
	return &Server{streamAddr: streamAddr, wsAddr: wsAddr, hub: hub, idleTimeout: idleTimeout}
}

// Run starts both listeners and blocks until ctx is canceled or either
// listener fails fatally.
func (s *Server) Run(ctx context.Context) error {
	streamLn, err := net.Listen("tcp", s.streamAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- s.runStreamListener(ctx, streamLn)
	}()
	go func() {
		errCh <- s.runWebSocketListener(ctx)
	}()

	go func() {
		<-ctx.Done()
		streamLn.Close()
	}()

	log.Printf("[server] stream transport listening on %s", s.streamAddr)
	log.Printf("[server] message transport (websocket) listening on %s", s.wsAddr)

	err = <-errCh
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runStreamListener accepts raw TCP connections, each becoming a framed,
// AEAD-capable connection (§4.1 "Stream transport").
func (s *Server) runStreamListener(ctx context.Context, ln net.Listener) error {
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveStreamConn(raw)
	}
}

func (s *Server) serveStreamConn(raw net.Conn) {
	t, err := newStreamTransport(raw)
	if err != nil {
		log.Printf("[server] init crypto session for %s: %v", raw.RemoteAddr(), err)
		raw.Close()
		return
	}
	conn := newConnection(t)
	s.serveConn(conn, t.crypto)
}

// runWebSocketListener accepts WebSocket upgrades, each becoming a
// plaintext whole-message connection (§4.1 "Message transport").
func (s *Server) runWebSocketListener(ctx context.Context) error {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[server] websocket upgrade failed: %v", err)
			return
		}
		t := newMessageTransport(ws)
		conn := newConnection(t)
		go s.serveConn(conn, nil)
	})

	httpSrv := &http.Server{
		Addr:              s.wsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.idleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] websocket shutdown: %v", err)
		}
	}()

	return httpSrv.ListenAndServe()
}

// serveConn is the per-connection read loop shared by both transports. cs
// is passed separately from conn so the handshake handler can mutate it
// directly; it is nil on the message transport (§4.1).
func (s *Server) serveConn(conn *Connection, cs *CryptoSession) {
	defer func() {
		s.hub.unbindByConn(conn)
		conn.Close()
	}()

	for {
		e, err := conn.ReadEnvelope()
		if err != nil {
			if err != io.EOF {
				log.Printf("[server] connection %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		s.hub.dispatch(conn, cs, e)
	}
}
