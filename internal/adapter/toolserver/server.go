package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claimpilot/claimpilot/internal/config"
	"github.com/claimpilot/claimpilot/internal/domain/tool"
)

// Invoker executes one named tool and returns its textual output.
type Invoker func(ctx context.Context, name string, args json.RawMessage) (string, error)

// Server serves the tool catalog over the session protocol: a GET to
// /sse opens the long-lived event stream, POSTs to /messages carry the
// JSON-RPC control messages, and responses flow back over the stream.
type Server struct {
	registry *tool.Registry
	invoke   Invoker
	log      *slog.Logger
	sessions *sessionRegistry

	name          string
	version       string
	keepAlive     time.Duration
	queueCapacity int
}

// NewServer creates a tool protocol server over the given catalog.
func NewServer(reg *tool.Registry, invoke Invoker, log *slog.Logger, cfg config.ToolServer, name, version string) *Server {
	return &Server{
		registry:      reg,
		invoke:        invoke,
		log:           log,
		sessions:      newSessionRegistry(),
		name:          name,
		version:       version,
		keepAlive:     cfg.KeepAlive,
		queueCapacity: cfg.QueueCapacity,
	}
}

// Routes returns the HTTP routes of the protocol surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/sse", s.handleStream)
	r.Post("/messages", s.handleMessage)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int { return s.sessions.count() }

// handleStream opens a session and streams its outbound queue until the
// client disconnects. The first event tells the client where to POST
// control messages for this session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := newSession(s.queueCapacity)
	s.sessions.add(sess)
	defer s.sessions.remove(sess.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.id)
	flusher.Flush()

	s.log.Info("session opened", "session_id", sess.id)

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.Info("session closed", "session_id", sess.id)
			return
		case resp, ok := <-sess.queue:
			if !ok {
				return
			}
			data, err := json.Marshal(resp)
			if err != nil {
				s.log.Error("marshal response", "session_id", sess.id, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			// Comment line keeps intermediaries from closing an idle stream.
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleMessage accepts one JSON-RPC control message for a session.
// The response, if any, is delivered over the session stream; the POST
// itself only acknowledges receipt.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	resp := s.dispatch(r.Context(), sess, &req)
	if resp != nil {
		if err := sess.enqueue(*resp); err != nil {
			s.log.Warn("enqueue response failed", "session_id", sess.id, "method", req.Method, "error", err)
			http.Error(w, "session unavailable", http.StatusGone)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

// dispatch routes one control message. A nil return means the message
// was a notification and must not produce a response.
func (s *Server) dispatch(ctx context.Context, sess *session, req *rpcRequest) *rpcResponse {
	s.log.Debug("rpc message", "session_id", sess.id, "method", req.Method)

	switch req.Method {
	case "initialize":
		sess.setState(stateInitialized)
		resp := resultResponse(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      serverInfo{Name: s.name, Version: s.version},
		})
		return &resp

	case "notifications/initialized":
		// One-way message: advance the handshake, emit nothing.
		sess.setState(stateReady)
		return nil

	case "tools/list":
		resp := resultResponse(req.ID, s.listTools())
		return &resp

	case "tools/call":
		resp := s.callTool(ctx, req)
		return &resp

	case "ping":
		resp := resultResponse(req.ID, map[string]any{})
		return &resp

	default:
		if req.isNotification() {
			s.log.Debug("unknown notification ignored", "method", req.Method)
			return nil
		}
		resp := errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
		return &resp
	}
}

func (s *Server) listTools() listToolsResult {
	names := s.registry.Names()
	out := listToolsResult{Tools: make([]toolDescriptor, 0, len(names))}
	for _, name := range names {
		def, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		out.Tools = append(out.Tools, toolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		})
	}
	return out
}

// callTool executes the named tool synchronously relative to this
// request. Execution failures come back as protocol-level errors, never
// as dropped connections.
func (s *Server) callTool(ctx context.Context, req *rpcRequest) rpcResponse {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInternalError, "invalid tools/call params: "+err.Error())
	}

	if _, err := s.registry.Get(params.Name); err != nil {
		return errorResponse(req.ID, codeInternalError, err.Error())
	}

	start := time.Now()
	output, err := s.invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool call failed",
			"tool", params.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return errorResponse(req.ID, codeInternalError, fmt.Sprintf("tool %s: %s", params.Name, err))
	}

	s.log.Info("tool call completed",
		"tool", params.Name,
		"duration_ms", time.Since(start).Milliseconds())
	return resultResponse(req.ID, textResult(output, false))
}
