package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// groupedCandidate is one symbol/file group assembled from one or more
// candidates that share a group key.
type groupedCandidate struct {
	GroupID     string
	File        string
	StartLine   int
	SymbolID    string
	SymbolLabel string
	Best        Candidate
}

// groupKey derives the stable key a candidate belongs to: its symbol id when
// present, otherwise a deterministic hash of file+range+content.
func groupKey(c Candidate) string {
	if c.Chunk.SymbolID != "" {
		return c.Chunk.FilePath + "::" + c.Chunk.SymbolID
	}
	return hashGroupID(c.Chunk.FilePath, c.Chunk.StartLine, c.Chunk.EndLine, c.Chunk.Content)
}

// hashGroupID returns "grp_<16 hex chars>" deterministically derived from
// the chunk's identity.
func hashGroupID(file string, start, end int, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d:%d:%s", file, start, end, content)
	sum := h.Sum(nil)
	return "grp_" + hex.EncodeToString(sum[:8])
}

// symbolLabel derives a human-facing label for a chunk: function name,
// falling back to class name, falling back to empty (unresolved symbol).
func symbolLabel(c Candidate) string {
	if c.Chunk.FunctionName != "" {
		return c.Chunk.FunctionName
	}
	return c.Chunk.ClassName
}

// groupBySymbol groups candidates by (file, symbolId) or, absent a symbol
// id, a deterministic content hash. The representative of each group is its
// highest-scoring candidate.
func groupBySymbol(candidates []Candidate) []groupedCandidate {
	groups := make(map[string]*groupedCandidate)
	var order []string

	for _, c := range candidates {
		key := groupKey(c)
		g, ok := groups[key]
		if !ok {
			g = &groupedCandidate{
				GroupID:     key,
				File:        c.Chunk.FilePath,
				StartLine:   c.Chunk.StartLine,
				SymbolID:    c.Chunk.SymbolID,
				SymbolLabel: symbolLabel(c),
				Best:        c,
			}
			groups[key] = g
			order = append(order, key)
			continue
		}
		if c.Score > g.Best.Score {
			g.Best = c
			g.StartLine = c.Chunk.StartLine
			g.SymbolLabel = symbolLabel(c)
		}
	}

	result := make([]groupedCandidate, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Best.Score != b.Best.Score {
			return a.Best.Score > b.Best.Score
		}
		aLabelled, bLabelled := a.SymbolLabel != "", b.SymbolLabel != ""
		if aLabelled != bLabelled {
			return aLabelled // labelled sorts before unlabelled
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.SymbolID < b.SymbolID
	})

	return result
}

// clampDiversity enforces maxPerFile across the sorted group list.
// maxPerSymbol is satisfied by construction: groupBySymbol already collapses
// every candidate sharing a symbol id into one representative.
func clampDiversity(groups []groupedCandidate, maxPerFile, maxPerSymbol int) ([]groupedCandidate, DiversityClamp) {
	clamp := DiversityClamp{MaxPerFile: maxPerFile, MaxPerSymbol: maxPerSymbol}
	if maxPerFile <= 0 {
		return groups, clamp
	}

	counts := make(map[string]int)
	kept := make([]groupedCandidate, 0, len(groups))
	for _, g := range groups {
		if counts[g.File] >= maxPerFile {
			clamp.DroppedByFile++
			continue
		}
		counts[g.File]++
		kept = append(kept, g)
	}
	return kept, clamp
}
