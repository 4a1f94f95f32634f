package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

type pathRequest struct {
	Path string `json:"path"`
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type listDirRequest struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
}

type dirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	data, err := os.ReadFile(s.resolvePath(req.Path))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "content": string(data)})
}

// handleWriteFile creates missing parent directories, so callers can lay
// out a tree in one pass.
func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	path := s.resolvePath(req.Path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

// handleDeleteFile removes a file or a directory tree.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	path := s.resolvePath(req.Path)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := os.RemoveAll(path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

// handleListDir lists a directory, directories first, optionally filtered
// by a glob pattern on entry names.
func (s *Server) handleListDir(w http.ResponseWriter, r *http.Request) {
	var req listDirRequest
	if !decodeBody(w, r, &req) {
		return
	}
	path := s.resolvePath(req.Path)
	if path == "" {
		path = s.cfg.WorkDir
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		if req.Pattern != "" {
			ok, err := filepath.Match(req.Pattern, e.Name())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid pattern: "+err.Error())
				return
			}
			if !ok && !e.IsDir() {
				continue
			}
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, dirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path, "entries": out})
}
