package httpserver

import (
	"encoding/base64"
	"net/http"
	"os"

	"github.com/gorilla/websocket"

	appanalysis "github.com/respiralab/breathe-easy/internal/application/analysis"
	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/middleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// liveMessage is one frame of the live-monitoring protocol. Chunks ride as
// base64 so the whole exchange stays JSON.
type liveMessage struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Chunk     string                 `json:"chunk,omitempty"`
	Chunks    int                    `json:"chunks,omitempty"`
	Result    *domain.AnalysisResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// GET /api/v1/stream/live — a WebSocket front for the same session state
// machine the multipart endpoints use: start, chunk*, finalize.
func (r *Router) handleLive(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	principal := middleware.GetPrincipalFromContext(req.Context())
	session := r.streams.Start()
	middleware.IncrementSessions()

	if err := conn.WriteJSON(liveMessage{Type: "started", SessionID: session.ID}); err != nil {
		return
	}

	for {
		var msg liveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "chunk":
			r.handleLiveChunk(conn, session.ID, &msg)
		case "finalize":
			r.handleLiveFinalize(conn, req, session.ID, principal)
			return
		case "ping":
			conn.WriteJSON(liveMessage{Type: "pong"})
		default:
			conn.WriteJSON(liveMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (r *Router) handleLiveChunk(conn *websocket.Conn, sessionID string, msg *liveMessage) {
	data, err := base64.StdEncoding.DecodeString(msg.Chunk)
	if err != nil {
		conn.WriteJSON(liveMessage{Type: "error", Error: "chunk is not valid base64"})
		return
	}

	count, err := r.streams.AppendChunk(sessionID, data)
	if err != nil {
		conn.WriteJSON(liveMessage{Type: "error", Error: err.Error()})
		return
	}
	middleware.IncrementChunks()

	conn.WriteJSON(liveMessage{Type: "ack", SessionID: sessionID, Chunks: count})
}

func (r *Router) handleLiveFinalize(conn *websocket.Conn, req *http.Request, sessionID, principal string) {
	stitched, err := r.streams.Finalize(sessionID)
	if err != nil {
		conn.WriteJSON(liveMessage{Type: "error", Error: err.Error()})
		return
	}

	tmp, err := os.CreateTemp("", "live-*.wav")
	if err != nil {
		conn.WriteJSON(liveMessage{Type: "error", Error: err.Error()})
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(stitched); err != nil {
		tmp.Close()
		conn.WriteJSON(liveMessage{Type: "error", Error: err.Error()})
		return
	}
	tmp.Close()

	res, err := r.svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
		Principal: principal,
		AudioPath: tmpPath,
		Filename:  sessionID + ".wav",
		Task:      domain.TaskMonitoring,
	})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		conn.WriteJSON(liveMessage{Type: "error", Error: err.Error()})
		return
	}
	middleware.IncrementAnalyses()

	conn.WriteJSON(liveMessage{Type: "result", SessionID: sessionID, Result: &res})
}
