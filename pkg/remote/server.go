// Package remote carries an iso14443a link over QUIC. A Server owns a
// local poller; a Client on another host drives it frame by frame.
package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// Server exposes one link to remote clients. Sessions are serialised: a
// session owns the link from its first request until its connection
// closes, and later sessions wait their turn.
type Server struct {
	link iso14443a.Poller

	// busy holds a token while a session owns the link.
	busy     chan struct{}
	listener *quic.Listener
	wg       sync.WaitGroup
}

// NewServer returns a server for link.
func NewServer(link iso14443a.Poller) *Server {
	return &Server{link: link, busy: make(chan struct{}, 1)}
}

// Listen opens the QUIC listener. A nil tlsConf gets a self-signed
// certificate.
func (s *Server) Listen(addr string, tlsConf *tls.Config) error {
	if tlsConf == nil {
		var err error
		tlsConf, err = ServerTLSConfig()
		if err != nil {
			return fmt.Errorf("generate TLS config: %w", err)
		}
	}
	ln, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the listening address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("remote: Serve called before Listen")
	}
	defer s.wg.Wait()
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops the listener.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn *quic.Conn) {
	session := uuid.NewString()
	log := slog.With("session", session, "peer", conn.RemoteAddr().String())
	log.Info("remote session opened")
	stop := context.AfterFunc(ctx, func() { conn.CloseWithError(0, "server shutting down") })
	defer stop()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Warn("remote session without stream", "err", err)
		conn.CloseWithError(0, "no stream")
		return
	}
	defer func() {
		stream.Close()
		conn.CloseWithError(0, "session closed")
		log.Info("remote session closed")
	}()

	select {
	case s.busy <- struct{}{}:
	default:
		log.Info("link busy, session queued")
		select {
		case s.busy <- struct{}{}:
		case <-ctx.Done():
			return
		case <-conn.Context().Done():
			return
		}
	}
	defer func() { <-s.busy }()

	tx := iso14443a.NewBuffer(maxFrameBytes)
	rx := iso14443a.NewBuffer(maxFrameBytes)
	for {
		op, fwt, err := readRequest(stream, tx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn("remote read request", "err", err)
			}
			return
		}
		status := s.do(op, fwt, tx, rx)
		log.Debug("remote exchange", "op", opName(op), "tx", tx.String(), "rx", rx.String(), "status", status)
		if err := writeResponse(stream, status, rx); err != nil {
			log.Warn("remote write response", "err", err)
			return
		}
	}
}

// do runs one request. The caller owns the link.
func (s *Server) do(op byte, fwt uint32, tx, rx *iso14443a.Buffer) byte {
	rx.Reset()
	var err error
	switch op {
	case opStandard:
		err = s.link.SendStandardFrame(tx, rx, fwt)
	case opRaw:
		err = s.link.Txrx(tx, rx, fwt)
	case opCustomParity:
		err = s.link.TxrxCustomParity(tx, rx, fwt)
	case opData:
		encodeData(s.link.Data(), rx)
	case opSetIdle:
		s.link.SetIdle()
	case opActivate:
		a, ok := s.link.(iso14443a.Activator)
		if !ok {
			return statusCommunication
		}
		if err = a.Activate(); err == nil {
			encodeData(s.link.Data(), rx)
		}
	default:
		return statusCommunication
	}
	return statusOf(err)
}
