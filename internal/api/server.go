// Package api is the HTTP collaborator that exposes the core scan engine,
// filter engine, resolver, and bridge over the client API described in
// spec.md section 6.2, following the teacher's writeJSON/writeError and
// route-registration idiom from internal/transport/server.go.
package api

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dorastack/memscan/internal/chunked"
	"github.com/dorastack/memscan/internal/comparator"
	"github.com/dorastack/memscan/internal/filter"
	"github.com/dorastack/memscan/internal/resolver"
	"github.com/dorastack/memscan/internal/scanner"
	"github.com/dorastack/memscan/internal/serializer"
)

const version = "0.1.0"

// Server serves Core's operations over HTTP.
type Server struct {
	core *Core
	addr string
}

// NewServer returns a Server bound to addr (e.g. "127.0.0.1:52174").
func NewServer(core *Core, addr string) *Server {
	return &Server{core: core, addr: addr}
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully within 5 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{Addr: s.addr, Handler: s.withLogging(mux)}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /attach", s.handleAttach)
	mux.HandleFunc("GET /enum_processes", s.handleEnumProcesses)
	mux.HandleFunc("GET /enum_modules", s.handleEnumModules)
	mux.HandleFunc("GET /enum_regions", s.handleEnumRegions)
	mux.HandleFunc("GET /read", s.handleRead)
	mux.HandleFunc("POST /read_multi", s.handleReadMulti)
	mux.HandleFunc("POST /write", s.handleWrite)
	mux.HandleFunc("POST /resolve", s.handleResolve)
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("POST /filter", s.handleFilter)
	mux.HandleFunc("POST /watchpoint", s.handleWatchpointSet)
	mux.HandleFunc("DELETE /watchpoint", s.handleWatchpointRemove)
	mux.HandleFunc("POST /breakpoint", s.handleBreakpointSet)
	mux.HandleFunc("DELETE /breakpoint", s.handleBreakpointRemove)
	mux.HandleFunc("GET /exception_info", s.handleExceptionInfo)
	mux.HandleFunc("POST /change_state", s.handleChangeState)
	mux.HandleFunc("GET /appinfo", s.handleAppInfo)
	mux.HandleFunc("GET /status", s.handleStatus)
}

// pidOrError returns the attached pid, writing a precondition error and
// reporting !ok if nothing has been attached yet.
func (s *Server) pidOrError(w http.ResponseWriter) (int, bool) {
	pid, attached := s.core.PID()
	if !attached {
		writeError(w, http.StatusBadRequest, ErrPidNotSet.Error())
		return 0, false
	}
	return pid, true
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.core.Attach(req.PID)
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleEnumProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := s.core.Bridge.EnumProcesses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

func (s *Server) handleEnumModules(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	mods, err := s.core.Bridge.EnumModules(r.Context(), pid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": mods})
}

func (s *Server) handleEnumRegions(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	regions, err := s.core.Bridge.EnumRegions(r.Context(), pid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	address, size, err := parseAddressSize(r.URL.Query().Get("address"), r.URL.Query().Get("size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := s.core.Bridge.Read(r.Context(), pid, address, size)
	w.Header().Set("Content-Type", "application/octet-stream")
	if err != nil {
		w.WriteHeader(http.StatusOK) // empty body on failure, per the client API's documented behavior
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleReadMulti(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var reqs []readMultiEntry
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var buf []byte
	for _, e := range reqs {
		data, err := s.core.Bridge.Read(r.Context(), pid, e.Address, e.Size)
		frame := make([]byte, 8)
		if err != nil {
			binary.LittleEndian.PutUint32(frame[0:4], 0)
			binary.LittleEndian.PutUint32(frame[4:8], 0)
			buf = append(buf, frame...)
			continue
		}
		binary.LittleEndian.PutUint32(frame[0:4], 1)
		binary.LittleEndian.PutUint32(frame[4:8], uint32(len(data)))
		buf = append(buf, frame...)
		buf = append(buf, data...)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(buf)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	data, err := hex.DecodeString(req.Bytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bytes is not valid hex")
		return
	}
	if _, err := s.core.Bridge.Write(r.Context(), pid, req.Address, data); err != nil {
		writeText(w, http.StatusInternalServerError, "err: "+err.Error())
		return
	}
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	mods, err := s.core.Bridge.EnumModules(r.Context(), pid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve failed: "+err.Error())
		return
	}
	addr, err := resolver.Resolve(r.Context(), s.core.Bridge, pid, req.Query, mods)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resolve failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Address: addr})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req MemoryScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	dataType, ok := parseDataType(req.DataType)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown data_type")
		return
	}
	findType, ok := parseFindType(req.FindType)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown find_type")
		return
	}
	ranges := make([]chunked.Range, len(req.Ranges))
	for i, rg := range req.Ranges {
		ranges[i] = rg.toRange()
	}

	found, err := s.core.Scanner.Scan(r.Context(), pid, scanner.Request{
		ScanID: req.ScanID, Pattern: req.Pattern, Ranges: ranges,
		FindType: findType, DataType: dataType, Align: req.Align, DoSuspend: req.DoSuspend,
	})
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, scanner.ErrInvalidHexPattern) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.resultFor(req.ScanID, found))
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req MemoryFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	dataType, ok := parseDataType(req.DataType)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown data_type")
		return
	}
	filterMethod, ok := parseFilterMethod(req.FilterMethod)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown filter_method")
		return
	}

	found, err := s.core.Filter.Filter(r.Context(), pid, filter.Request{
		ScanID: req.ScanID, Pattern: req.Pattern, DataType: dataType,
		FilterMethod: filterMethod, DoSuspend: req.DoSuspend,
	})
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, filter.ErrScanNotFound) || errors.Is(err, filter.ErrInvalidHexPattern) || errors.Is(err, comparator.ErrShortValue) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.resultFor(req.ScanID, found))
}

// resultFor builds the client-facing result shape for a scan-id that has
// just been scanned or filtered: found-only while the session is still in
// snapshot form (after an unknown-mode scan, and after every filter pass
// that leaves it at or above the materialization threshold), full
// candidate detail for an exact-mode session or once it has materialized.
func (s *Server) resultFor(scanID string, found int) serializer.Result {
	sess, ok := s.core.Store.Get(scanID)
	if !ok {
		return serializer.Result{Found: found}
	}
	sess.RLock()
	defer sess.RUnlock()
	if sess.InSnapshotMode() {
		return serializer.FromSurvivorCount(found, s.core.MaterializationThreshold)
	}
	cands := make([]serializer.CandidateLike, len(sess.Candidates))
	for i, c := range sess.Candidates {
		cands[i] = serializer.CandidateLike(c)
	}
	return serializer.FromCandidates(cands, s.core.MaxResults)
}

func (s *Server) handleWatchpointSet(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req watchpointSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	typ, ok := parseWatchType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown watch type")
		return
	}
	if err := s.core.Bridge.SetWatchpoint(r.Context(), pid, req.Address, req.Size, typ); err != nil {
		writeJSON(w, http.StatusInternalServerError, simpleResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResult{Success: true, Message: "watchpoint set"})
}

func (s *Server) handleWatchpointRemove(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req watchpointRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.core.Bridge.RemoveWatchpoint(r.Context(), pid, req.Address); err != nil {
		writeJSON(w, http.StatusInternalServerError, simpleResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResult{Success: true, Message: "watchpoint removed"})
}

func (s *Server) handleBreakpointSet(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req breakpointSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.core.Bridge.SetBreakpoint(r.Context(), pid, req.Address, req.HitCount); err != nil {
		writeJSON(w, http.StatusInternalServerError, simpleResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResult{Success: true, Message: "breakpoint set"})
}

func (s *Server) handleBreakpointRemove(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	var req breakpointRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.core.Bridge.RemoveBreakpoint(r.Context(), pid, req.Address); err != nil {
		writeJSON(w, http.StatusInternalServerError, simpleResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResult{Success: true, Message: "breakpoint removed"})
}

func (s *Server) handleExceptionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Events.Drain())
}

func (s *Server) handleChangeState(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.pidOrError(w); !ok {
		return
	}
	var req changeStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.core.Guard.SetDoPlay(req.DoPlay)
	writeJSON(w, http.StatusOK, simpleResult{Success: true, Message: "state updated"})
}

func (s *Server) handleAppInfo(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidOrError(w)
	if !ok {
		return
	}
	data, err := s.core.Bridge.GetApplicationInfo(r.Context(), pid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pid, attached := s.core.PID()
	writeJSON(w, http.StatusOK, statusResponse{Version: version, Attached: attached, PID: pid})
}

// Helpers

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	io.WriteString(w, text)
}

func parseAddressSize(addrStr, sizeStr string) (uint64, int, error) {
	var addr uint64
	var size int
	if _, err := fmt.Sscanf(addrStr, "%d", &addr); err != nil {
		return 0, 0, fmt.Errorf("invalid address")
	}
	if _, err := fmt.Sscanf(sizeStr, "%d", &size); err != nil {
		return 0, 0, fmt.Errorf("invalid size")
	}
	return addr, size, nil
}
