package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/preview"
)

const (
	msgPreviewRequest = "preview_request"
	msgFrameRequest   = "frame_request"
	msgPreviewReady   = "preview_ready"
	msgFrameReady     = "frame_ready"
	msgPreviewError   = "preview_error"

	// Scrubbing segments are shorter than the HTTP default.
	wsSegmentDuration = 3
	wsWriteTimeout    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 4 << 10,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

type wsInbound struct {
	Type      string          `json:"type"`
	Project   json.RawMessage `json:"project"`
	Timestamp *float64        `json:"timestamp"`
	Duration  float64         `json:"duration,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type wsOutbound struct {
	Type       string   `json:"type"`
	PreviewURL string   `json:"previewUrl,omitempty"`
	FrameURL   string   `json:"frameUrl,omitempty"`
	Timestamp  *float64 `json:"timestamp,omitempty"`
	Duration   float64  `json:"duration,omitempty"`
	SessionID  string   `json:"sessionId,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// wsHandler upgrades to the preview session transport. Browsers cannot set
// headers on a websocket handshake, so the token travels in ?token=.
func wsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.AuthDisabled {
			valid, err := checkToken(r.Context(), cfg.Tokens, r.URL.Query().Get("token"))
			if err != nil {
				cfg.Logger.Error("failed to get auth token from config", "error", err)
				WriteError(w, http.StatusInternalServerError, "auth configuration error", "INTERNAL_ERROR")
				return
			}
			if !valid {
				WriteError(w, http.StatusUnauthorized, "invalid token", "UNAUTHORIZED")
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		c := &wsConn{conn: conn, cfg: cfg}
		cfg.Logger.Info("preview client connected", "remote", r.RemoteAddr)
		c.serve(ctx)
		cancel()
		c.wg.Wait()
		conn.Close()
		cfg.Logger.Info("preview client disconnected", "remote", r.RemoteAddr)
	}
}

type wsConn struct {
	conn *websocket.Conn
	cfg  ServerConfig

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// serve reads requests until the client goes away. Results are written from
// their own goroutines as they resolve.
func (c *wsConn) serve(ctx context.Context) {
	c.conn.SetReadLimit(maxBodyBytes)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.cfg.Logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(wsOutbound{Type: msgPreviewError, Error: "invalid message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *wsConn) handle(ctx context.Context, msg wsInbound) {
	fail := func(err error) {
		c.send(wsOutbound{Type: msgPreviewError, Error: err.Error(), SessionID: msg.SessionID})
	}

	req := preview.Request{SessionID: msg.SessionID}
	switch msg.Type {
	case msgPreviewRequest:
		req.Kind = preview.KindSegment
		req.Duration = msg.Duration
		if req.Duration <= 0 {
			req.Duration = wsSegmentDuration
		}
	case msgFrameRequest:
		req.Kind = preview.KindFrame
	default:
		fail(errors.New("unknown message type " + msg.Type))
		return
	}
	if msg.Timestamp == nil {
		fail(errors.New("timestamp is required"))
		return
	}
	req.Timestamp = *msg.Timestamp

	p, err := decodeProject(msg.Project)
	if err != nil {
		fail(err)
		return
	}
	req.Project = p

	pending, err := c.cfg.Previews.Request(ctx, req)
	if err != nil {
		fail(err)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := pending.Wait(ctx)
		if err != nil {
			return
		}

		logger := logging.WithSessionID(c.cfg.Logger, pending.SessionID)
		switch res.Outcome {
		case preview.Delivered:
			ts := res.Artifact.Timestamp
			out := wsOutbound{Timestamp: &ts, SessionID: msg.SessionID}
			if req.Kind == preview.KindFrame {
				out.Type = msgFrameReady
				out.FrameURL = res.Artifact.URL
			} else {
				out.Type = msgPreviewReady
				out.PreviewURL = res.Artifact.URL
				out.Duration = res.Artifact.Duration
			}
			c.send(out)
		case preview.Failed:
			logger.Info("preview failed", "error", res.Err)
			text := "preview generation failed"
			if res.Err != nil {
				text = res.Err.Error()
			}
			c.send(wsOutbound{Type: msgPreviewError, Error: text, SessionID: msg.SessionID})
		case preview.Superseded:
			logger.Debug("preview superseded", "generation", pending.Generation)
		}
	}()
}

func (c *wsConn) send(out wsOutbound) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(out); err != nil {
		c.cfg.Logger.Debug("websocket write failed", "error", err)
	}
}
