// Package callgraph answers call_graph queries by statically scanning source
// text for call expressions, reusing outline's declaration detection to
// resolve callee names back to concrete symbols. It does not build a real
// AST call graph — that needs a per-language semantic analyzer this
// codebase doesn't carry — so edges are name-matched and best-effort,
// exactly like the outline package's boundary-regex approach.
package callgraph

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jamaly87/codebase-semantic-search/internal/outline"
)

const (
	DirectionCallers = "callers"
	DirectionCallees = "callees"
	DirectionBoth    = "both"

	StatusOK       = "ok"
	StatusNotFound = "not_found"
)

// SymbolRef identifies a symbol to start the graph from.
type SymbolRef struct {
	File        string
	SymbolID    string
	SymbolLabel string
	StartLine   int
	EndLine     int
}

// Node is one symbol participating in the graph.
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// Edge is a directed call relationship, From calls To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Result is the full call_graph tool response.
type Result struct {
	Status string
	Nodes  []Node
	Edges  []Edge
}

var callExprRe = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)

var reservedWords = map[string]bool{
	"if": true, "for": true, "switch": true, "return": true, "func": true,
	"while": true, "catch": true, "else": true, "var": true, "let": true,
	"const": true, "new": true, "function": true, "class": true, "interface": true,
	"type": true, "map": true, "make": true, "len": true, "append": true,
	"panic": true, "recover": true, "range": true,
}

var supportedExts = map[string]bool{".go": true, ".java": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true}

// BuildGraph resolves a symbol and walks call edges outward up to depth
// hops, in the requested direction, bounded by limit total nodes.
func BuildGraph(repoPath string, ref SymbolRef, direction string, depth, limit int) (Result, error) {
	startOutline, err := outline.BuildOutline(repoPath, ref.File, 0)
	if err != nil {
		return Result{}, fmt.Errorf("build outline for %s: %w", ref.File, err)
	}
	if startOutline.Status != outline.StatusOK {
		return Result{Status: StatusNotFound}, nil
	}

	startSym, ok := resolveStart(startOutline.Outline, ref)
	if !ok {
		return Result{Status: StatusNotFound}, nil
	}

	startNode := Node{ID: startSym.ID, Label: startSym.Label, File: ref.File, StartLine: startSym.StartLine, EndLine: startSym.EndLine}
	nodes := map[string]Node{startNode.ID: startNode}
	var edges []Edge
	seenEdge := map[string]bool{}

	index, err := indexRepoSymbols(repoPath)
	if err != nil {
		return Result{}, err
	}

	frontier := []Node{startNode}
	for d := 0; d < depth && len(frontier) > 0 && len(nodes) < limit; d++ {
		var next []Node
		for _, n := range frontier {
			body, err := readSpan(repoPath, n.File, n.StartLine, n.EndLine)
			if err != nil {
				continue
			}

			if direction == DirectionCallees || direction == DirectionBoth {
				for _, callee := range extractCalls(body) {
					target, ok := index.lookup(callee)
					if !ok || target.ID == n.ID {
						continue
					}
					addEdge(&edges, seenEdge, n.ID, target.ID, "calls")
					if _, exists := nodes[target.ID]; !exists && len(nodes) < limit {
						nodes[target.ID] = target
						next = append(next, target)
					}
				}
			}

			if direction == DirectionCallers || direction == DirectionBoth {
				callers, err := findCallers(repoPath, n.Label, n.File)
				if err == nil {
					for _, caller := range callers {
						if caller.ID == n.ID {
							continue
						}
						addEdge(&edges, seenEdge, caller.ID, n.ID, "calls")
						if _, exists := nodes[caller.ID]; !exists && len(nodes) < limit {
							nodes[caller.ID] = caller
							next = append(next, caller)
						}
					}
				}
			}
		}
		frontier = next
	}

	result := Result{Status: StatusOK}
	for _, n := range nodes {
		result.Nodes = append(result.Nodes, n)
	}
	result.Edges = edges
	return result, nil
}

func resolveStart(o *outline.Outline, ref SymbolRef) (outline.Symbol, bool) {
	if ref.SymbolID != "" {
		for _, s := range o.Symbols {
			if s.ID == ref.SymbolID {
				return s, true
			}
		}
	}
	if ref.SymbolLabel != "" {
		sym, ok, ambiguous := outline.ResolveExact(o, ref.SymbolLabel)
		if ambiguous {
			for _, s := range o.Symbols {
				if s.Label == ref.SymbolLabel && s.StartLine <= ref.StartLine && ref.StartLine <= s.EndLine {
					return s, true
				}
			}
		}
		return sym, ok
	}
	for _, s := range o.Symbols {
		if ref.StartLine >= s.StartLine && ref.StartLine <= s.EndLine {
			return s, true
		}
	}
	return outline.Symbol{}, false
}

func extractCalls(body string) []string {
	matches := callExprRe.FindAllStringSubmatch(body, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		name := m[1]
		if reservedWords[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func addEdge(edges *[]Edge, seen map[string]bool, from, to, kind string) {
	key := from + "->" + to
	if seen[key] {
		return
	}
	seen[key] = true
	*edges = append(*edges, Edge{From: from, To: to, Kind: kind})
}

func readSpan(repoPath, relFile string, start, end int) (string, error) {
	f, err := os.Open(filepath.Join(repoPath, relFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line < start {
			continue
		}
		if end > 0 && line > end {
			break
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	return b.String(), scanner.Err()
}

// symbolIndex maps a symbol label to its (first) resolved node across the
// whole codebase, for resolving callee names found in call expressions.
type symbolIndex struct {
	byLabel map[string]Node
}

func (idx symbolIndex) lookup(label string) (Node, bool) {
	n, ok := idx.byLabel[label]
	return n, ok
}

func indexRepoSymbols(repoPath string) (symbolIndex, error) {
	idx := symbolIndex{byLabel: map[string]Node{}}
	err := filepath.Walk(repoPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.Contains(path, string(filepath.Separator)+".git"+string(filepath.Separator)) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExts[ext] {
			return nil
		}
		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return nil
		}
		res, err := outline.BuildOutline(repoPath, rel, 0)
		if err != nil || res.Outline == nil {
			return nil
		}
		for _, s := range res.Outline.Symbols {
			if _, exists := idx.byLabel[s.Label]; !exists {
				idx.byLabel[s.Label] = Node{ID: s.ID, Label: s.Label, File: rel, StartLine: s.StartLine, EndLine: s.EndLine}
			}
		}
		return nil
	})
	return idx, err
}

// findCallers scans the repo for call sites of label outside its own
// declaring symbol, returning the enclosing symbol of each call site.
func findCallers(repoPath, label, ownFile string) ([]Node, error) {
	callRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(label) + `\s*\(`)
	var callers []Node
	err := filepath.Walk(repoPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.Contains(path, string(filepath.Separator)+".git"+string(filepath.Separator)) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExts[ext] {
			return nil
		}
		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		text := string(data)
		if !callRe.MatchString(text) {
			return nil
		}

		res, err := outline.BuildOutline(repoPath, rel, 0)
		if err != nil || res.Outline == nil {
			return nil
		}

		lines := strings.Split(text, "\n")
		for lineNo, lineText := range lines {
			if !callRe.MatchString(lineText) {
				continue
			}
			enclosing, ok := enclosingSymbol(res.Outline, lineNo+1)
			if !ok {
				continue
			}
			if rel == ownFile && enclosing.Label == label {
				continue
			}
			callers = append(callers, Node{ID: enclosing.ID, Label: enclosing.Label, File: rel, StartLine: enclosing.StartLine, EndLine: enclosing.EndLine})
		}
		return nil
	})
	return callers, err
}

func enclosingSymbol(o *outline.Outline, line int) (outline.Symbol, bool) {
	for _, s := range o.Symbols {
		if line >= s.StartLine && line <= s.EndLine {
			return s, true
		}
	}
	return outline.Symbol{}, false
}
