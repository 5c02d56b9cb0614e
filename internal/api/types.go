package api

import (
	"github.com/dorastack/memscan/internal/bridge"
	"github.com/dorastack/memscan/internal/chunked"
	"github.com/dorastack/memscan/internal/scantypes"
)

type attachRequest struct {
	PID int `json:"pid"`
}

type rangeJSON struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (r rangeJSON) toRange() chunked.Range { return chunked.Range{Start: r.Start, End: r.End} }

// MemoryScanRequest is the body of POST /scan.
type MemoryScanRequest struct {
	ScanID    string      `json:"scan_id"`
	Pattern   string      `json:"pattern"`
	Ranges    []rangeJSON `json:"ranges"`
	FindType  string      `json:"find_type"`
	DataType  string      `json:"data_type"`
	Align     uint64      `json:"align,omitempty"`
	DoSuspend bool        `json:"do_suspend,omitempty"`
}

// MemoryFilterRequest is the body of POST /filter.
type MemoryFilterRequest struct {
	ScanID       string `json:"scan_id"`
	Pattern      string `json:"pattern,omitempty"`
	DataType     string `json:"data_type"`
	FilterMethod string `json:"filter_method"`
	DoSuspend    bool   `json:"do_suspend,omitempty"`
}

type readMultiEntry struct {
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
}

type writeRequest struct {
	Address uint64 `json:"address"`
	Bytes   string `json:"bytes"` // hex-encoded
}

type resolveRequest struct {
	Query string `json:"query"`
}

type resolveResponse struct {
	Address uint64 `json:"address"`
}

type watchpointSetRequest struct {
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
	Type    string `json:"type"`
}

type watchpointRemoveRequest struct {
	Address uint64 `json:"address"`
}

type breakpointSetRequest struct {
	Address  uint64 `json:"address"`
	HitCount int    `json:"hit_count"`
}

type breakpointRemoveRequest struct {
	Address uint64 `json:"address"`
}

type changeStateRequest struct {
	DoPlay bool `json:"do_play"`
}

type simpleResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type statusResponse struct {
	Version  string `json:"version"`
	Attached bool   `json:"attached"`
	PID      int    `json:"pid,omitempty"`
}

func parseDataType(s string) (scantypes.DataType, bool) {
	switch s {
	case "int8":
		return scantypes.Int8, true
	case "uint8":
		return scantypes.Uint8, true
	case "int16":
		return scantypes.Int16, true
	case "uint16":
		return scantypes.Uint16, true
	case "int32":
		return scantypes.Int32, true
	case "uint32":
		return scantypes.Uint32, true
	case "int64":
		return scantypes.Int64, true
	case "uint64":
		return scantypes.Uint64, true
	case "float":
		return scantypes.Float, true
	case "double":
		return scantypes.Double, true
	case "utf-8":
		return scantypes.UTF8, true
	case "utf-16":
		return scantypes.UTF16, true
	case "aob":
		return scantypes.AOB, true
	case "regex":
		return scantypes.Regex, true
	default:
		return 0, false
	}
}

func parseFindType(s string) (scantypes.FindType, bool) {
	switch s {
	case "exact":
		return scantypes.FindExact, true
	case "unknown":
		return scantypes.FindUnknown, true
	default:
		return 0, false
	}
}

func parseFilterMethod(s string) (scantypes.FilterMethod, bool) {
	switch s {
	case "exact":
		return scantypes.MethodExact, true
	case "changed":
		return scantypes.MethodChanged, true
	case "unchanged":
		return scantypes.MethodUnchanged, true
	case "increased":
		return scantypes.MethodIncreased, true
	case "decreased":
		return scantypes.MethodDecreased, true
	default:
		return 0, false
	}
}

func parseWatchType(s string) (bridge.WatchType, bool) {
	switch bridge.WatchType(s) {
	case bridge.WatchRead, bridge.WatchWrite, bridge.WatchReadWrite:
		return bridge.WatchType(s), true
	default:
		return "", false
	}
}
