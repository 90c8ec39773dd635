// Package serve implements the NDJSON streaming scanner used by `yarascan
// serve`: rules are compiled once and each request line is answered with one
// response line.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/scanner"
)

// Version is the server protocol version
const Version = "1.0.0"

// Server manages the streaming scanner
type Server struct {
	core    *scanner.Core
	encoder *json.Encoder
	decoder *json.Decoder
	logger  hclog.Logger
}

// NewServer creates a new streaming server
func NewServer(core *scanner.Core, in io.Reader, out io.Writer) *Server {
	return &Server{
		core:    core,
		encoder: json.NewEncoder(out),
		decoder: json.NewDecoder(bufio.NewReader(in)),
		logger:  hclog.NewNullLogger(),
	}
}

// SetLogger sets the logger used for per-request diagnostics.
func (s *Server) SetLogger(logger hclog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run starts the server main loop
func (s *Server) Run(ctx context.Context) error {
	// Send ready signal
	s.sendReady()

	// Use buffered channels for incoming requests
	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := s.decoder.Decode(&req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Process requests until stdin closes or context cancels
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// Drain any pending requests before handling EOF
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(ctx, req) {
						return nil
					}
				default:
					// No more pending requests
					if err == io.EOF {
						return nil
					}
					s.sendError(TypeDecode, err.Error())
					return nil
				}
			}
		case req := <-reqChan:
			if s.processRequest(ctx, req) {
				return nil
			}
		}
	}
}

// processRequest handles a single request and returns true if the server should exit
func (s *Server) processRequest(ctx context.Context, req Request) bool {
	s.logger.Debug("request", "type", req.Type)
	switch req.Type {
	case TypeScan:
		s.handleScan(ctx, req.Payload)
	case TypeScanBatch:
		s.handleScanBatch(ctx, req.Payload)
	case TypeRules:
		s.sendData(TypeRules, RulesData{Namespaces: s.core.Namespaces()})
	case TypeClose:
		return true
	default:
		s.sendError("unknown", "unknown request type: "+req.Type)
	}
	return false
}

func (s *Server) sendReady() {
	s.sendData(TypeReady, ReadyData{
		Version:    Version,
		Backend:    engine.Backend,
		Namespaces: len(s.core.Namespaces()),
	})
}

func (s *Server) handleScan(ctx context.Context, payload json.RawMessage) {
	var p ScanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(TypeScan, err.Error())
		return
	}

	result, err := s.core.Scan(ctx, p.Content, p.Source)
	if err != nil {
		s.logger.Warn("scan failed", "source", p.Source, "error", err)
		s.sendError(TypeScan, err.Error())
		return
	}
	s.sendData(TypeScan, result)
}

func (s *Server) handleScanBatch(ctx context.Context, payload json.RawMessage) {
	var p ScanBatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(TypeScanBatch, err.Error())
		return
	}

	result, err := s.core.ScanBatch(ctx, p.Items)
	if err != nil {
		s.sendError(TypeScanBatch, err.Error())
		return
	}
	s.sendData(TypeScanBatch, result)
}

func (s *Server) sendData(respType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.sendError(respType, err.Error())
		return
	}
	s.encoder.Encode(Response{
		Success: true,
		Type:    respType,
		Data:    data,
	})
}

func (s *Server) sendError(reqType, msg string) {
	s.encoder.Encode(Response{
		Success: false,
		Type:    reqType,
		Error:   msg,
	})
}
