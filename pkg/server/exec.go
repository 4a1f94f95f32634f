package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultExecTimeout = 120 * time.Second

type executeRequest struct {
	Code string `json:"code"`

	// Input is fed to the script on stdin, so callers can hand data to
	// the code without embedding it in the source.
	Input          string `json:"input"`
	TimeoutSeconds int    `json:"timeout"`
}

type runFileRequest struct {
	Path           string   `json:"path"`
	Args           []string `json:"args"`
	Input          string   `json:"input"`
	TimeoutSeconds int      `json:"timeout"`
}

// executeResult mirrors the shape a subprocess run produces. TimedOut is
// set when the process was killed by the deadline; ReturnCode is then
// whatever the kill produced.
type executeResult struct {
	OK         bool   `json:"ok"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// handleExecute writes the submitted code to a temp file and runs it with
// the configured interpreter.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	scriptPath := filepath.Join(os.TempDir(), "orcabridge-"+uuid.NewString()+".py")
	if err := os.WriteFile(scriptPath, []byte(req.Code), 0o600); err != nil {
		writeError(w, http.StatusInternalServerError, "write script: "+err.Error())
		return
	}
	defer os.Remove(scriptPath)

	result := s.runScript(r.Context(), scriptPath, nil, req.Input, req.TimeoutSeconds)
	writeJSON(w, http.StatusOK, result)
}

// handleRunFile runs an existing script with the configured interpreter.
func (s *Server) handleRunFile(w http.ResponseWriter, r *http.Request) {
	var req runFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	path := s.resolvePath(req.Path)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "script not found: "+req.Path)
		return
	}
	result := s.runScript(r.Context(), path, req.Args, req.Input, req.TimeoutSeconds)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runScript(ctx context.Context, path string, args []string, input string, timeoutSeconds int) executeResult {
	timeout := defaultExecTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{path}, args...)
	cmd := exec.CommandContext(ctx, s.cfg.Interpreter, argv...)
	cmd.Dir = s.cfg.WorkDir
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)

	result := executeResult{
		OK:     err == nil,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ReturnCode = exitErr.ExitCode()
	default:
		result.ReturnCode = -1
		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.OK = false
	}

	s.log.Info("script run",
		zap.String("path", path),
		zap.Int("returncode", result.ReturnCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("took", took))
	return result
}
