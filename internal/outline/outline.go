// Package outline extracts a flat list of top-level symbols (functions,
// methods, types/classes) from a single source file, for the file_outline
// tool. It reuses the same lightweight boundary-regex approach the indexer's
// line chunker uses to find function/class boundaries, rather than a full
// AST walk, since an outline only needs declaration lines and extents.
package outline

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Symbol is one top-level declaration found in a file.
type Symbol struct {
	ID        string `json:"symbolId"`
	Label     string `json:"symbolLabel"`
	Kind      string `json:"kind"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// Outline is the full symbol listing for one file.
type Outline struct {
	Symbols []Symbol `json:"symbols"`
}

// Result wraps an outline with the tool-level status fields.
type Result struct {
	Status   string
	Outline  *Outline
	HasMore  bool
	Warnings []string
}

const (
	StatusOK          = "ok"
	StatusAmbiguous   = "ambiguous"
	StatusNotFound    = "not_found"
	StatusUnsupported = "unsupported"
)

var declPatterns = map[string]*regexp.Regexp{
	".go":  regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?(\w+)`),
	".java": regexp.MustCompile(`^(?:public|private|protected)?\s*(?:static\s+)?(?:class|interface|enum)\s+(\w+)|^(?:public|private|protected)?\s*(?:static\s+)?[\w<>\[\],\s]+\s+(\w+)\s*\(`),
	".ts":  regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?(?:function|class|interface|type)\s+(\w+)`),
	".tsx": regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?(?:function|class|interface|type)\s+(\w+)`),
	".js":  regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?(?:function|class)\s+(\w+)`),
	".jsx": regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?(?:function|class)\s+(\w+)`),
}

// BuildOutline extracts the symbol list for one file inside a codebase.
// limitSymbols <= 0 means no limit.
func BuildOutline(repoPath, relFile string, limitSymbols int) (Result, error) {
	ext := strings.ToLower(filepath.Ext(relFile))
	pattern, ok := declPatterns[ext]
	if !ok {
		return Result{Status: StatusUnsupported}, nil
	}

	absPath := filepath.Join(repoPath, relFile)
	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Status: StatusNotFound}, nil
		}
		return Result{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var symbols []Symbol
	var lines []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		lines = append(lines, text)

		trimmed := strings.TrimSpace(text)
		m := pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		name := firstNonEmpty(m[1:])
		if name == "" {
			continue
		}
		symbols = append(symbols, Symbol{
			Label:     name,
			Kind:      kindFor(ext, trimmed),
			StartLine: lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("scan file: %w", err)
	}

	closeSymbolExtents(symbols, len(lines))
	for i := range symbols {
		symbols[i].ID = symbolID(relFile, symbols[i].Label, symbols[i].StartLine)
	}

	hasMore := false
	if limitSymbols > 0 && len(symbols) > limitSymbols {
		symbols = symbols[:limitSymbols]
		hasMore = true
	}

	return Result{Status: StatusOK, Outline: &Outline{Symbols: symbols}, HasMore: hasMore}, nil
}

// closeSymbolExtents sets each symbol's EndLine to one line before the next
// symbol starts, or end-of-file for the last one. This is a coarse
// approximation — good enough for a navigation aid, not a precise AST span.
func closeSymbolExtents(symbols []Symbol, totalLines int) {
	for i := range symbols {
		if i+1 < len(symbols) {
			symbols[i].EndLine = symbols[i+1].StartLine - 1
		} else {
			symbols[i].EndLine = totalLines
		}
	}
}

func kindFor(ext, line string) string {
	switch {
	case strings.Contains(line, "class "):
		return "class"
	case strings.Contains(line, "interface "):
		return "interface"
	case strings.Contains(line, "type ") && ext != ".go":
		return "type"
	case strings.Contains(line, "enum "):
		return "enum"
	default:
		return "function"
	}
}

func firstNonEmpty(candidates []string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// symbolID derives a stable id for a symbol from its file, label and start
// line, matching the grp_ style hashing used elsewhere for fallback ids.
func symbolID(file, label string, startLine int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:%d", file, label, startLine)
	sum := h.Sum(nil)
	return "sym_" + hex.EncodeToString(sum[:8])
}

// FilterByRange narrows an outline to symbols whose span overlaps
// [startLine, endLine], for file_outline's start_line/end_line arguments.
func FilterByRange(o *Outline, startLine, endLine int) *Outline {
	if o == nil {
		return o
	}
	filtered := make([]Symbol, 0, len(o.Symbols))
	for _, s := range o.Symbols {
		if s.StartLine <= endLine && s.EndLine >= startLine {
			filtered = append(filtered, s)
		}
	}
	return &Outline{Symbols: filtered}
}

// ResolveExact finds symbols in an outline whose label matches exactly,
// returning (match, found, ambiguous). Used by file_outline's resolveMode=exact.
func ResolveExact(o *Outline, label string) (Symbol, bool, bool) {
	var matches []Symbol
	for _, s := range o.Symbols {
		if s.Label == label {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return Symbol{}, false, false
	case 1:
		return matches[0], true, false
	default:
		return Symbol{}, false, true
	}
}
