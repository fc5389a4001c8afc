package search

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// mergeAdjacent merges candidates from the same file whose line ranges are
// within maxLineDistance of each other and whose breadcrumb matches. Content
// for a merged candidate is re-read from disk over the union line range;
// on read failure it falls back to the original snippets joined by a gap
// marker.
func mergeAdjacent(repoPath string, candidates []Candidate, maxLineDistance int) []Candidate {
	byFile := make(map[string][]Candidate)
	var fileOrder []string
	for _, c := range candidates {
		if _, ok := byFile[c.Chunk.FilePath]; !ok {
			fileOrder = append(fileOrder, c.Chunk.FilePath)
		}
		byFile[c.Chunk.FilePath] = append(byFile[c.Chunk.FilePath], c)
	}

	var merged []Candidate
	for _, file := range fileOrder {
		group := byFile[file]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Chunk.StartLine < group[j].Chunk.StartLine
		})

		current := group[0]
		for _, next := range group[1:] {
			gap := next.Chunk.StartLine - current.Chunk.EndLine
			sameCrumb := chunkBreadcrumb(current) == chunkBreadcrumb(next)
			if gap <= maxLineDistance && sameCrumb {
				current = mergeTwo(repoPath, current, next)
				continue
			}
			merged = append(merged, current)
			current = next
		}
		merged = append(merged, current)
	}

	return merged
}

func chunkBreadcrumb(c Candidate) string {
	parts := []string{}
	if c.Chunk.ClassName != "" {
		parts = append(parts, c.Chunk.ClassName)
	}
	if c.Chunk.FunctionName != "" {
		parts = append(parts, c.Chunk.FunctionName)
	}
	return strings.Join(parts, " > ")
}

func mergeTwo(repoPath string, a, b Candidate) Candidate {
	start, end := a.Chunk.StartLine, b.Chunk.EndLine
	if a.Chunk.StartLine > b.Chunk.StartLine {
		start = b.Chunk.StartLine
	}
	if a.Chunk.EndLine > b.Chunk.EndLine {
		end = a.Chunk.EndLine
	}

	content, err := readLineRange(filepath.Join(repoPath, a.Chunk.FilePath), start, end)
	if err != nil {
		content = a.Chunk.Content + "\n\n... (gap) ...\n\n" + b.Chunk.Content
	}

	merged := a
	if b.Score > a.Score {
		merged = b
	}
	merged.Chunk.StartLine = start
	merged.Chunk.EndLine = end
	merged.Chunk.Content = content
	if a.Score > merged.Score {
		merged.Score = a.Score
	}
	if b.Score > merged.Score {
		merged.Score = b.Score
	}
	return merged
}

func readLineRange(path string, start, end int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line >= start && line <= end {
			lines = append(lines, scanner.Text())
		}
		if line > end {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
