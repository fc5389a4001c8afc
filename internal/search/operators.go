package search

import (
	"strings"
)

// parsedOperators holds the accumulated op:value tokens stripped from the
// first logical line of a query, and the semantic query that remains.
type parsedOperators struct {
	Lang    []string
	Path    []string
	Must    []string
	Exclude []string
	Query   string
}

var knownOperators = map[string]bool{
	"lang":    true,
	"path":    true,
	"must":    true,
	"exclude": true,
}

// parseOperators inspects the first logical line of a query for op:value or
// op:"quoted value" tokens. Unknown operators are left untouched (they are
// not operators at all, so the first line is treated as plain query text if
// none of its tokens are recognized operators). Duplicate operators
// accumulate into the same slice.
func parseOperators(query string) parsedOperators {
	result := parsedOperators{}

	lines := strings.SplitN(query, "\n", 2)
	firstLine := lines[0]
	rest := ""
	if len(lines) > 1 {
		rest = lines[1]
	}

	tokens, hadAny := tokenizeOperatorLine(firstLine)
	if !hadAny {
		result.Query = strings.TrimSpace(query)
		return result
	}

	var leftover []string
	for _, tok := range tokens {
		op, val, ok := splitOperatorToken(tok)
		if !ok {
			leftover = append(leftover, tok)
			continue
		}
		switch op {
		case "lang":
			result.Lang = append(result.Lang, val)
		case "path":
			result.Path = append(result.Path, val)
		case "must":
			result.Must = append(result.Must, val)
		case "exclude":
			result.Exclude = append(result.Exclude, val)
		default:
			leftover = append(leftover, tok)
		}
	}

	remainder := strings.Join(leftover, " ")
	if rest != "" {
		if remainder != "" {
			remainder += "\n"
		}
		remainder += rest
	}
	result.Query = strings.TrimSpace(remainder)
	return result
}

// tokenizeOperatorLine splits a line into whitespace-separated tokens,
// respecting double-quoted spans, and reports whether at least one token
// looks like a known operator.
func tokenizeOperatorLine(line string) ([]string, bool) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	hadAny := false
	for _, tok := range tokens {
		if op, _, ok := splitOperatorToken(tok); ok && knownOperators[op] {
			hadAny = true
			break
		}
	}
	return tokens, hadAny
}

// splitOperatorToken splits "op:value" or `op:"quoted value"` into its parts.
func splitOperatorToken(tok string) (op, value string, ok bool) {
	idx := strings.Index(tok, ":")
	if idx <= 0 || idx == len(tok)-1 {
		return "", "", false
	}
	op = tok[:idx]
	if !knownOperators[op] {
		return "", "", false
	}
	value = tok[idx+1:]
	value = strings.Trim(value, `"`)
	return op, value, true
}
