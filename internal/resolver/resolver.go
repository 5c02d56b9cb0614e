// Package resolver evaluates address expressions of the form
// "module.exe + 0x10 + [0x20 + [0x8]]" against a target process's loaded
// modules, turning module names into base addresses and bracketed
// sub-expressions into pointer dereferences read through a bridge.Bridge.
package resolver

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dorastack/memscan/internal/bridge"
)

var termPattern = regexp.MustCompile(`([+\-*])?\s*(0x[0-9a-fA-F]+|\d+)`)

// Resolve evaluates expr against the given module list, dereferencing any
// "[...]" sub-expressions through br as 8-byte little-endian pointers.
// Brackets are resolved innermost-first, matching how a debugger would
// chase "base + [ptr + offset]" one level at a time.
func Resolve(ctx context.Context, br bridge.Bridge, pid int, expr string, modules []bridge.Module) (uint64, error) {
	working := expr
	for {
		start, end, ok := innermostBracket(working)
		if !ok {
			break
		}
		inner := working[start+1 : end]
		addr, err := resolveSingleLevel(inner, modules)
		if err != nil {
			return 0, err
		}
		val, err := dereference(ctx, br, pid, addr)
		if err != nil {
			return 0, err
		}
		working = working[:start] + fmt.Sprintf("0x%X", val) + working[end+1:]
	}
	if strings.ContainsAny(working, "[]") {
		return 0, fmt.Errorf("%w: unbalanced brackets in %q", ErrMalformedExpression, expr)
	}
	return resolveSingleLevel(working, modules)
}

// innermostBracket finds the first closing bracket and its nearest
// preceding opening bracket, i.e. the innermost, leftmost bracket pair.
func innermostBracket(s string) (start, end int, ok bool) {
	end = strings.IndexByte(s, ']')
	if end == -1 {
		return 0, 0, false
	}
	start = strings.LastIndexByte(s[:end], '[')
	if start == -1 {
		return 0, 0, false
	}
	return start, end, true
}

func dereference(ctx context.Context, br bridge.Bridge, pid int, addr uint64) (uint64, error) {
	buf, err := br.Read(ctx, pid, addr, 8)
	if err != nil {
		return 0, fmt.Errorf("resolver: dereference 0x%x: %w", addr, err)
	}
	if len(buf) < 8 {
		return 0, fmt.Errorf("%w: got %d bytes at 0x%x", ErrShortDereference, len(buf), addr)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// resolveSingleLevel evaluates a single bracket-free expression, after
// substituting any module names it contains with their base addresses.
func resolveSingleLevel(expr string, modules []bridge.Module) (uint64, error) {
	resolved := substituteModuleNames(expr, modules)

	matches := termPattern.FindAllStringSubmatch(resolved, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedExpression, expr)
	}

	var current uint64
	for i, m := range matches {
		op, valStr := m[1], m[2]
		val, err := parseNumber(valStr)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedExpression, err)
		}
		if i == 0 {
			current = val
			continue
		}
		switch op {
		case "+":
			current += val
		case "-":
			current -= val
		case "*":
			current *= val
		default:
			return 0, fmt.Errorf("%w: before %q", ErrMissingOperator, valStr)
		}
	}
	return current, nil
}

// substituteModuleNames replaces whole-word, case-insensitive occurrences
// of a module's file name with its base address, written as a hex
// literal. A match immediately followed by '.' is left untouched — it is
// part of a longer file name ("libfoo" inside "libfoo.so") rather than a
// standalone reference.
func substituteModuleNames(expr string, modules []bridge.Module) string {
	resolved := expr
	for _, m := range modules {
		name := filepath.Base(m.Name)
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		resolved = replaceUnlessExtended(resolved, re, m.Base)
	}
	return resolved
}

func replaceUnlessExtended(s string, re *regexp.Regexp, base uint64) string {
	locs := re.FindAllStringIndex(s, -1)
	if locs == nil {
		return s
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		sb.WriteString(s[last:start])
		if end < len(s) && s[end] == '.' {
			sb.WriteString(s[start:end])
		} else {
			sb.WriteString(fmt.Sprintf("0x%X", base))
		}
		last = end
	}
	sb.WriteString(s[last:])
	return sb.String()
}

func parseNumber(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
