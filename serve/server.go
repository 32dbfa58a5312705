package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	codecontinue "github.com/Paranoid-AF/codecontinue"
	"github.com/Paranoid-AF/codecontinue/generate"
	"github.com/Paranoid-AF/codecontinue/track"
)

// maxMessageSize bounds one request line. Completion requests carry the
// whole document.
const maxMessageSize = 16 << 20

// Engine is the completion core the server drives.
type Engine interface {
	Complete(ctx context.Context, req *codecontinue.Request) *codecontinue.Response
	ShouldTrigger(req *codecontinue.EditRequest) bool
	CloseDocument(doc string)
	Accept(doc string)
	ShouldClear(doc string) bool
	Stats() track.Stats
	Reset()
	Config() *codecontinue.Config
	SetConfig(cfg *codecontinue.Config)
	Close()
}

// Server listens on a Unix domain socket for editor requests.
type Server struct {
	listener   net.Listener
	sockPath   string
	configPath string
	engine     Engine

	// ctx is canceled on Close so in-flight model calls stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	onReload func(*codecontinue.Config)

	closeOnce sync.Once
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	return NewServerWithEngine(sockPath, generate.NewEngine())
}

// NewServerWithEngine creates a new IPC server with a custom Engine.
func NewServerWithEngine(sockPath string, engine Engine) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		listener:   listener,
		sockPath:   sockPath,
		configPath: codecontinue.ConfigPath(),
		engine:     engine,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// OnReload registers fn to run after every successful config reload.
func (s *Server) OnReload(fn func(*codecontinue.Config)) {
	s.mu.Lock()
	s.onReload = fn
	s.mu.Unlock()
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, the engine, and removes the socket file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.listener.Close()
		s.engine.Close()
		os.Remove(s.sockPath)
	})
}

// envelope selects the handler for a request line.
type envelope struct {
	Type string `json:"type"`
}

// errorResponse answers requests that could not be dispatched.
type errorResponse struct {
	Error *codecontinue.Error `json:"error"`
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("failed to read request", "error", err)
		}
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "bytes", len(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid request", "error", err)
		return
	}

	var resp any
	switch env.Type {
	case codecontinue.TypeComplete:
		var req codecontinue.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid completion request", "error", err)
			return
		}
		resp = s.handleComplete(&req)

	case codecontinue.TypeEdit:
		var req codecontinue.EditRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid edit request", "error", err)
			return
		}
		resp = codecontinue.EditResponse{Trigger: s.engine.ShouldTrigger(&req)}

	case codecontinue.TypeClose, codecontinue.TypeAccept, codecontinue.TypeClear:
		var req codecontinue.DocumentRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid document request", "error", err)
			return
		}
		resp = s.handleDocument(&req)

	case codecontinue.TypeConfig:
		var req codecontinue.ConfigRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("invalid config request", "error", err)
			return
		}
		resp = s.handleConfigRequest(&req)

	case codecontinue.TypeStats:
		st := s.engine.Stats()
		resp = codecontinue.StatsResponse{Documents: st.Documents, ActiveRequests: st.ActiveRequests}

	case codecontinue.TypeReset:
		s.engine.Reset()
		resp = codecontinue.DocumentResponse{OK: true}

	default:
		resp = errorResponse{Error: &codecontinue.Error{
			Code:    "unknown_type",
			Message: "unknown request type: " + env.Type,
		}}
	}

	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp any) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	if _, err := conn.Write(append(data, '\n')); err != nil {
		slog.Debug("client went away before the response was written", "error", err)
	}
}

// handleComplete runs one completion. Superseded requests are not
// canceled; the engine reports them stale when they finish.
func (s *Server) handleComplete(req *codecontinue.Request) *codecontinue.Response {
	if req.Doc == "" {
		return &codecontinue.Response{
			RequestID: req.RequestID,
			Outcome:   codecontinue.OutcomeFailed,
			Error:     &codecontinue.Error{Code: "invalid_request", Message: "doc is required"},
		}
	}

	resp := s.engine.Complete(s.ctx, req)
	resp.RequestID = req.RequestID
	return resp
}

func (s *Server) handleDocument(req *codecontinue.DocumentRequest) codecontinue.DocumentResponse {
	if req.Doc == "" {
		return codecontinue.DocumentResponse{
			Error: &codecontinue.Error{Code: "invalid_request", Message: "doc is required"},
		}
	}

	resp := codecontinue.DocumentResponse{OK: true}
	switch req.Type {
	case codecontinue.TypeClose:
		s.engine.CloseDocument(req.Doc)
	case codecontinue.TypeAccept:
		s.engine.Accept(req.Doc)
	case codecontinue.TypeClear:
		allowed := s.engine.ShouldClear(req.Doc)
		resp.Clear = &allowed
	}
	return resp
}

func (s *Server) handleConfigRequest(req *codecontinue.ConfigRequest) *codecontinue.ConfigResponse {
	var resp codecontinue.ConfigResponse

	switch req.Action {
	case "get":
		resp.Config = s.engine.Config().Masked()

	case "reload":
		cfg, err := s.Reload()
		if err != nil {
			resp.Error = &codecontinue.Error{Code: "config_error", Message: err.Error()}
		} else {
			resp.Config = cfg.Masked()
		}

	case "defaults":
		resp.Config = codecontinue.DefaultConfig()

	case "validate":
		cfg, err := codecontinue.LoadConfigFrom(s.configPath)
		if err != nil {
			resp.Error = &codecontinue.Error{Code: "config_error", Message: err.Error()}
		} else {
			resp.Warnings = validate(cfg)
		}

	default:
		resp.Error = &codecontinue.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}

	return &resp
}

// validate extends the config warnings with an endpoint check.
func validate(cfg *codecontinue.Config) []string {
	warnings := codecontinue.ValidateConfig(cfg)
	if endpoint := codecontinue.ResolveEndpoint(cfg); endpoint != "" {
		if err := generate.ValidateEndpoint(endpoint); err != nil {
			warnings = append(warnings, "generation endpoint is invalid: "+err.Error())
		}
	}
	return warnings
}

// Reload re-reads the config file and swaps it into the engine. On error
// the current config stays active.
func (s *Server) Reload() (*codecontinue.Config, error) {
	cfg, err := codecontinue.LoadConfigFrom(s.configPath)
	if err != nil {
		slog.Warn("config reload failed, keeping current config", "error", err)
		return nil, err
	}
	s.engine.SetConfig(cfg)
	for _, w := range validate(cfg) {
		slog.Warn("config", "warning", w)
	}
	slog.Info("config reloaded", "path", s.configPath)

	s.mu.Lock()
	fn := s.onReload
	s.mu.Unlock()
	if fn != nil {
		fn(cfg)
	}
	return cfg, nil
}
