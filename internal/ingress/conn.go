package ingress

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"ws2osc/internal/logger"
	"ws2osc/internal/parser"
)

// serve runs the read loop of one connection. Frames are queued up to MaxQueue
// and processed in arrival order; a full queue stops reading from the peer.
func (s *Server) serve(c *client) {
	log := s.log().With(logger.Fields{"remote": c.remote})

	c.conn.SetReadLimit(s.cfg.MaxFrameSize)
	s.extendReadDeadline(c.conn)
	c.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(c.conn)
		return nil
	})

	frames := make(chan string, s.cfg.MaxQueue)
	processed := make(chan struct{})
	go func() {
		defer close(processed)
		for frame := range frames {
			s.dispatch(log, frame)
		}
	}()

	stopPing := make(chan struct{})
	go s.keepAlive(c.conn, stopPing, log)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			s.logClose(log, err)
			break
		}
		s.extendReadDeadline(c.conn)
		if mt != websocket.TextMessage {
			log.Debugf("ignoring non-text frame of %d bytes", len(data))
			continue
		}
		s.metrics.Frame()
		frames <- string(data)
	}

	close(stopPing)
	close(frames)
	<-processed
}

func (s *Server) extendReadDeadline(conn *websocket.Conn) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval + s.cfg.PingTimeout))
}

// keepAlive pings the peer every PingInterval. A peer that does not answer
// within PingTimeout hits the read deadline and is dropped by the read loop.
func (s *Server) keepAlive(conn *websocket.Conn, stop <-chan struct{}, log *logger.Log) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.PingTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debugf("ping failed: %v", err)
				return
			}
		}
	}
}

func (s *Server) dispatch(log *logger.Log, frame string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("message handler panic: %v", r)
		}
	}()

	log.Debugf("received frame: %q", frame)

	cmds, diags := parser.Parse(frame)
	for _, d := range diags {
		s.metrics.Dropped(parser.Reason(d))
		log.Warnf("dropped command: %v", d)
	}
	if len(cmds) == 0 {
		return
	}

	if err := s.handler(cmds); err != nil {
		log.Errorf("message handler error: %v", err)
	}
}

// logClose classifies why the read loop ended. Abnormal closures are only
// logged; the peer has to reconnect on its own.
func (s *Server) logClose(log *logger.Log, err error) {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce) && ce.Code == websocket.CloseAbnormalClosure:
		log.Warnf("connection closed abnormally: %v", err)
	case errors.As(err, &ce):
		log.Infof("connection closed: %v", err)
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warnf("frame exceeds %d bytes, closing connection", s.cfg.MaxFrameSize)
	case s.isClosing():
		log.Debugf("connection closed during shutdown: %v", err)
	default:
		log.Warnf("connection error: %v", err)
	}
}

func (s *Server) isClosing() bool {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.closing
}
