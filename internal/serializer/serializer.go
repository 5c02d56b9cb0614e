// Package serializer turns a scan or filter's surviving candidates into
// the client-facing result shape, capping output and flagging when the
// cap or the materialization threshold rounded the count.
package serializer

import "sort"

// MatchedAddress is one address/value pair in a result.
type MatchedAddress struct {
	Address uint64 `json:"address"`
	Value   string `json:"value"`
}

// Result is the shape returned by scan and filter calls.
type Result struct {
	MatchedAddresses []MatchedAddress `json:"matched_addresses,omitempty"`
	Found            int              `json:"found"`
	IsRounded        bool             `json:"is_rounded"`
}

// CandidateLike is the minimal shape serializer needs from a candidate,
// kept independent of scanstore.Candidate to avoid a needless import.
type CandidateLike struct {
	Address  uint64
	PriorHex string
}

// FromCandidates sorts candidates by address and caps the emitted list at
// maxResults. Found always reports the true survivor count even when the
// emitted list was capped.
func FromCandidates(candidates []CandidateLike, maxResults int) Result {
	sorted := append([]CandidateLike(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	rounded := len(sorted) > maxResults
	n := len(sorted)
	if rounded {
		n = maxResults
	}
	out := make([]MatchedAddress, n)
	for i := 0; i < n; i++ {
		out[i] = MatchedAddress{Address: sorted[i].Address, Value: sorted[i].PriorHex}
	}
	return Result{MatchedAddresses: out, Found: len(sorted), IsRounded: rounded}
}

// FromSurvivorCount produces a found-only result for an unknown-mode
// session that has not yet materialized into candidates: no per-address
// data exists yet to emit. IsRounded is set only when count exceeds
// materializationThreshold.
func FromSurvivorCount(count, materializationThreshold int) Result {
	return Result{Found: count, IsRounded: count > materializationThreshold}
}
