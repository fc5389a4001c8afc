package indexer

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
)

// Splitter selects which chunking strategy ChunkFileWithSplitter applies.
type Splitter string

const (
	// SplitterLines is the default line-window chunker with boundary snapping.
	SplitterLines Splitter = ""
	// SplitterAST extracts semantic chunks (functions, classes, methods) via
	// Tree-sitter, falling back to SplitterLines for languages it can't parse.
	SplitterAST Splitter = "ast"
	// SplitterLangchain is a token-aware chunker in the style of langchain's
	// text splitters, sized off the tokenizer rather than raw line counts.
	SplitterLangchain Splitter = "langchain"
)

// Chunker splits code files into chunks
type Chunker struct {
	config       *config.ChunkingConfig
	langDetector *LanguageDetector
	astChunker   *ASTChunker
	tokenChunker *TokenChunker
}

// NewChunker creates a new code chunker. The AST and token sub-chunkers are
// optional collaborators: either may be nil if their runtime dependency
// (Tree-sitter grammars, the tiktoken encoding table) failed to initialize,
// in which case ChunkFileWithSplitter falls back to the line-window chunker.
func NewChunker(cfg *config.ChunkingConfig) *Chunker {
	astChunker, err := NewASTChunker()
	if err != nil {
		log.Printf("Warning: AST chunker unavailable, ast splitter will fall back to line chunks: %v", err)
		astChunker = nil
	}

	tokenChunker, err := NewTokenChunker(cfg.MediumFileMaxTokens, cfg.OverlapLines)
	if err != nil {
		log.Printf("Warning: token chunker unavailable, langchain splitter will fall back to line chunks: %v", err)
		tokenChunker = nil
	}

	return &Chunker{
		config:       cfg,
		langDetector: NewLanguageDetector(),
		astChunker:   astChunker,
		tokenChunker: tokenChunker,
	}
}

// ChunkFile splits a file into chunks using the default line-window splitter.
func (c *Chunker) ChunkFile(repoPath, filePath string) ([]models.CodeChunk, error) {
	return c.ChunkFileWithSplitter(repoPath, filePath, SplitterLines)
}

// ChunkFileWithSplitter splits a file into chunks using the requested
// strategy. An empty splitter (or one whose sub-chunker isn't available for
// this file's language) behaves exactly like ChunkFile.
func (c *Chunker) ChunkFileWithSplitter(repoPath, filePath string, splitter Splitter) ([]models.CodeChunk, error) {
	// Detect language
	lang, ok := c.langDetector.Detect(filePath)
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}

	// Read file content
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Chunks are keyed by path relative to the codebase root so the stored
	// file_path survives the codebase being checked out under a different
	// absolute location and matches the paths the ignore matcher reasons about.
	relPath, err := filepath.Rel(repoPath, filePath)
	if err != nil {
		relPath = filePath
	}

	if strings.TrimSpace(string(content)) == "" {
		return nil, nil
	}

	var chunks []models.CodeChunk

	// Create file-level chunk (whole file)
	lines := strings.Split(string(content), "\n")
	fileChunk := c.createFileChunk(repoPath, relPath, lang.Name, string(content), len(lines))
	chunks = append(chunks, fileChunk)

	switch {
	case splitter == SplitterAST && c.astChunker != nil && c.astChunker.CanParseLanguage(lang.Name):
		astChunks, err := c.astChunker.ChunkByAST(repoPath, relPath, lang.Name, string(content), c.config)
		if err != nil || len(astChunks) == 0 {
			chunks = append(chunks, c.createLineChunks(repoPath, relPath, lang.Name, lines)...)
		} else {
			chunks = append(chunks, astChunks...)
		}

	case splitter == SplitterLangchain && c.tokenChunker != nil:
		maxTokens := c.maxTokensForFile(len(lines))
		tokenChunks, err := c.tokenChunker.ChunkByTokensWithLimits(repoPath, relPath, lang.Name, string(content), maxTokens, c.config.OverlapLines)
		if err != nil || len(tokenChunks) == 0 {
			chunks = append(chunks, c.createLineChunks(repoPath, relPath, lang.Name, lines)...)
		} else {
			chunks = append(chunks, tokenChunks...)
		}

	default:
		chunks = append(chunks, c.createLineChunks(repoPath, relPath, lang.Name, lines)...)
	}

	return chunks, nil
}

// Close releases the Tree-sitter parsers backing the AST splitter.
func (c *Chunker) Close() {
	if c.astChunker != nil {
		c.astChunker.Close()
	}
}

// maxTokensForFile picks one of the three adaptive token budgets configured
// for small/medium/large files, keyed off line count.
func (c *Chunker) maxTokensForFile(totalLines int) int {
	switch {
	case totalLines < 1000:
		return c.config.SmallFileMaxTokens
	case totalLines <= 5000:
		return c.config.MediumFileMaxTokens
	default:
		return c.config.LargeFileMaxTokens
	}
}

// createFileChunk creates a chunk for the entire file
func (c *Chunker) createFileChunk(repoPath, filePath, language, content string, totalLines int) models.CodeChunk {
	return models.CodeChunk{
		ID:        uuid.New().String(),
		RepoPath:  repoPath,
		FilePath:  filePath,
		ChunkType: models.ChunkTypeFile,
		Content:   content,
		Language:  language,
		StartLine: 1,
		EndLine:   totalLines,
	}
}

// createLineChunks creates line-based chunks with overlap and smart boundary detection
func (c *Chunker) createLineChunks(repoPath, filePath, language string, lines []string) []models.CodeChunk {
	var chunks []models.CodeChunk

	maxLines := c.config.MaxLines
	overlap := c.config.OverlapLines

	// Skip if file is too small
	if len(lines) <= maxLines {
		return chunks // File-level chunk is enough
	}

	// Get language-specific patterns for boundary detection
	boundaryPattern := getFunctionBoundaryPattern(language)

	currentChunk := []string{}
	chunkStartLine := 0

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		currentChunk = append(currentChunk, line)

		// Check if we should split
		shouldSplit := false
		isGoodSplitPoint := false

		// Check if we've exceeded max lines
		if len(currentChunk) >= maxLines {
			shouldSplit = true

			// Check if this is a good split point (function/class boundary)
			if i+1 < len(lines) && boundaryPattern != nil {
				trimmedNextLine := strings.TrimSpace(lines[i+1])
				if boundaryPattern.MatchString(trimmedNextLine) && len(currentChunk) > 5 {
					isGoodSplitPoint = true
				}
			}

			// If not at a good split point but we're past 60% of max, look ahead for one
			if !isGoodSplitPoint && len(currentChunk) >= int(float64(maxLines)*0.6) {
				for j := i + 1; j < i+10 && j < len(lines); j++ {
					trimmedLine := strings.TrimSpace(lines[j])
					if boundaryPattern != nil && boundaryPattern.MatchString(trimmedLine) {
						// Found a boundary within 10 lines, extend to there
						for k := i + 1; k <= j; k++ {
							currentChunk = append(currentChunk, lines[k])
						}
						i = j
						isGoodSplitPoint = true
						break
					}
				}
			}
		}

		// Create chunk if we should split
		if shouldSplit && len(currentChunk) > 0 {
			content := strings.Join(currentChunk, "\n")

			// Skip empty or whitespace-only chunks
			if strings.TrimSpace(content) != "" {
				chunk := models.CodeChunk{
					ID:        uuid.New().String(),
					RepoPath:  repoPath,
					FilePath:  filePath,
					ChunkType: models.ChunkTypeFunction,
					Content:   content,
					Language:  language,
					StartLine: chunkStartLine + 1,
					EndLine:   chunkStartLine + len(currentChunk),
				}
				chunks = append(chunks, chunk)
			}

			// Create overlap for next chunk
			overlapStart := len(currentChunk) - overlap
			if overlapStart < 0 {
				overlapStart = 0
			}
			currentChunk = currentChunk[overlapStart:]
			chunkStartLine = chunkStartLine + len(currentChunk) - len(currentChunk)
			if overlapStart > 0 {
				chunkStartLine += overlapStart
			}
		}
	}

	// Add remaining chunk
	if len(currentChunk) > 0 {
		content := strings.Join(currentChunk, "\n")
		if strings.TrimSpace(content) != "" {
			chunk := models.CodeChunk{
				ID:        uuid.New().String(),
				RepoPath:  repoPath,
				FilePath:  filePath,
				ChunkType: models.ChunkTypeFunction,
				Content:   content,
				Language:  language,
				StartLine: chunkStartLine + 1,
				EndLine:   len(lines),
			}
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// getFunctionBoundaryPattern returns a regex pattern for detecting function/class boundaries
func getFunctionBoundaryPattern(language string) *regexp.Regexp {
	patterns := map[string]string{
		"java":       `^(public|private|protected)?\s*(static\s+)?(class|interface|enum|void|int|String|boolean|@)\s+\w+`,
		"javascript": `^(export\s+)?(async\s+)?(function|class|const|let|var)\s+\w+`,
		"typescript": `^(export\s+)?(async\s+)?(function|class|const|let|var|interface|type)\s+\w+`,
		"go":         `^(func|type|const|var)\s+\w+`,
	}

	pattern, ok := patterns[language]
	if !ok {
		return nil
	}

	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}

	return regex
}

// GetStats returns statistics about chunking
func (c *Chunker) GetStats(chunks []models.CodeChunk) map[string]int {
	stats := map[string]int{
		"total":    len(chunks),
		"file":     0,
		"function": 0,
	}

	for _, chunk := range chunks {
		switch chunk.ChunkType {
		case models.ChunkTypeFile:
			stats["file"]++
		case models.ChunkTypeFunction:
			stats["function"]++
		}
	}

	return stats
}

// readFileLines reads a file and returns its lines
func readFileLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
