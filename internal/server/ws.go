package server

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/clawmate/clawmate/internal/llm"
)

// wsChatFrame is one streaming chat frame sent to the client.
type wsChatFrame struct {
	Delta string `json:"delta,omitempty"`
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done"`
}

// wsCommandFrame is one streaming command output frame.
type wsCommandFrame struct {
	Origin string `json:"origin,omitempty"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
	Done   bool   `json:"done"`
}

// handleChatWS streams model output over a websocket. Each client
// message is a chatRequest; each reply is a series of delta frames
// terminated by a done frame.
func (s *Server) handleChatWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[server] chat ws read: %v", err)
			}
			return
		}

		if s.llm == nil {
			if err := conn.WriteJSON(wsChatFrame{Error: llm.ErrNoBackend.Error(), Done: true}); err != nil {
				return
			}
			continue
		}

		model := req.Model
		if model == "" {
			model = s.defaultModel
		}

		streamErr := s.llm.ChatStream(c.Request.Context(), req.Messages, model, func(delta string) error {
			return conn.WriteJSON(wsChatFrame{Delta: delta, Model: model})
		})
		final := wsChatFrame{Model: model, Done: true}
		if streamErr != nil {
			final.Error = streamErr.Error()
		}
		if err := conn.WriteJSON(final); err != nil {
			return
		}
	}
}

// handleCommandWS streams command output over a websocket. Each client
// message is a commandRequest; output arrives as per-line frames with
// their stream origin, terminated by a done frame.
func (s *Server) handleCommandWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req commandRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[server] command ws read: %v", err)
			}
			return
		}

		execReq := req.toExecution()
		if verdict := s.policy.Vet(execReq.CommandLine(), req.Elevated); !verdict.Allowed() {
			if err := conn.WriteJSON(wsCommandFrame{Error: verdict.Reason, Done: true}); err != nil {
				return
			}
			continue
		}

		streamCtx, cancel := context.WithCancel(c.Request.Context())
		chunks := s.executor.Stream(streamCtx, execReq)
		writeFailed := false
		for chunk := range chunks {
			if writeFailed {
				continue
			}
			frame := wsCommandFrame{Origin: string(chunk.Origin), Text: chunk.Text}
			if chunk.Err() {
				frame.Error = chunk.Text
				frame.Text = ""
			}
			if err := conn.WriteJSON(frame); err != nil {
				// Keep draining so the process gets killed and reaped;
				// an abandoned channel would strand the readers.
				cancel()
				writeFailed = true
			}
		}
		cancel()
		if writeFailed {
			return
		}
		if err := conn.WriteJSON(wsCommandFrame{Done: true}); err != nil {
			return
		}
	}
}
