// Package server exposes a display bank over a line based TCP protocol.
//
// After connecting, the client reads the greeting "owo." and sends its
// protocol version, which must start with "1". The server clears every
// display to black, answers "200" and then reads one command per line:
//
//	q                                      end the session
//	init                                   initialize every panel
//	clear <d> <rrggbb>                     fill display d
//	rect <d> <x1> <y1> <x2> <y2> <rrggbb>  draw a rectangle
//	file <d> <path>                        draw the image at path
//	image <d> <name>                       draw a media image sized for d
//	text <d> <x> <y> <size> <valign> <text>
//	png <d> <path>                         save d's frame buffer
//	update <d>                             send d's frame buffer
//	power <d> true|false
//	invert <d> true|false
//	rand                                   fill every display with noise
//
// Drawing commands update the display unless the line ends with " &". A
// line may start with "#<seq> ", which is echoed before the response.
// Responses are "200", "400 <reason>" for bad requests and "500 <reason>"
// for hardware or file failures. When the client leaves every display is
// cleared to blue.
//
// Updating a display resets its frame buffer to black. A png after a
// drawing command without " &", or after update, therefore exports a black
// image; clients that want a snapshot draw with " &" and save before
// updating.
//
// Sessions are served one at a time.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zpin/lcdbank"
	"github.com/zpin/lcdbank/rgb565"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":2909"

const (
	greeting = "owo."
	version  = "1"
)

// Server serves one Bank.
type Server struct {
	bank *lcdbank.Bank
	log  zerolog.Logger

	mu     sync.Mutex
	ln     net.Listener
	conn   net.Conn
	closed bool

	// active is held for the life of a client connection.
	active sync.Mutex
}

// New returns a Server for bank. log may be nil.
func New(bank *lcdbank.Bank, log *zerolog.Logger) *Server {
	s := &Server{bank: bank, log: zerolog.Nop()}
	if log != nil {
		s.log = *log
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is done or Close is
// called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and serves them in turn. It returns nil
// after Close or cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("server ready")
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.ServeConn(c)
	}
}

// ServeConn runs one session on c and closes it.
func (s *Server) ServeConn(c net.Conn) {
	s.active.Lock()
	defer s.active.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.conn = c
	s.mu.Unlock()

	log := s.log.With().Str("remote", c.RemoteAddr().String()).Logger()
	log.Info().Msg("incoming connection")

	handshaken := s.run(c, log)

	c.Close()
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	if !handshaken {
		return
	}
	log.Info().Msg("connection terminated")
	if err := s.bank.ClearAll(rgb565.Blue); err != nil {
		log.Error().Err(err).Msg("failed to clear displays")
	}
}

func (s *Server) run(c net.Conn, log zerolog.Logger) bool {
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)

	if err := writeLine(w, greeting); err != nil {
		log.Debug().Err(err).Msg("greeting failed")
		return false
	}
	v, err := r.ReadString('\n')
	if err != nil {
		log.Debug().Err(err).Msg("no version received")
		return false
	}
	if !strings.HasPrefix(v, version) {
		log.Warn().Str("version", strings.TrimSpace(v)).Msg("invalid version")
		return false
	}
	log.Info().Msg("connected")
	if err := s.bank.ClearAll(rgb565.Black); err != nil {
		log.Error().Err(err).Msg("failed to clear displays")
	}
	if err := writeLine(w, "200"); err != nil {
		return true
	}

	sess := &session{bank: s.bank, log: log}
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return true
		}
		req := parseRequest(line)
		if req.quit() {
			return true
		}
		resp := sess.handle(req)
		if err := writeLine(w, req.seq+resp); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return true
		}
	}
}

func writeLine(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s + "\n"); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting connections and ends the current session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.ln != nil {
		errs = append(errs, s.ln.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
