package search

import "github.com/jamaly87/codebase-semantic-search/pkg/config"

var suggestedIgnorePatternsForNoise = []string{
	"**/*.test.*",
	"**/*.spec.*",
	"**/__tests__/**",
	"**/__fixtures__/**",
	"**/fixtures/**",
	"docs/**",
	"coverage/**",
}

// computeNoiseMitigation inspects the top-min(NoiseTopK, limit) grouped
// results and, when runtime content is dominated by everything else, builds
// the hint that nudges a caller toward scope=runtime and an ignore-pattern
// manage_index sync.
func computeNoiseMitigation(cfg *config.SearchConfig, groups []groupedCandidate, limit int) *NoiseMitigation {
	topK := cfg.NoiseTopK
	if limit < topK {
		topK = limit
	}
	if topK <= 0 || len(groups) == 0 {
		return nil
	}
	if topK > len(groups) {
		topK = len(groups)
	}

	counts := map[string]int{
		classifyTests:     0,
		classifyFixtures:  0,
		classifyDocs:      0,
		classifyGenerated: 0,
		classifyRuntime:   0,
	}
	for _, g := range groups[:topK] {
		counts[classify(g.File)]++
	}

	ratios := make(map[string]float64, len(counts))
	for k, v := range counts {
		ratios[k] = float64(v) / float64(topK)
	}

	others := ratios[classifyTests] + ratios[classifyFixtures] + ratios[classifyDocs] + ratios[classifyGenerated]
	if ratios[classifyRuntime] > cfg.NoiseRuntimeShareMax || others < cfg.NoiseOtherShareMin {
		return nil
	}

	return &NoiseMitigation{
		Reason:                  "top_results_noise_dominant",
		TopK:                    topK,
		Ratios:                  ratios,
		RecommendedScope:        "runtime",
		DebounceMs:              cfg.NoiseDebounceMs,
		SuggestedIgnorePatterns: suggestedIgnorePatternsForNoise,
		NextStep:                `retry with scope="runtime", or run manage_index with {"action":"sync"} after adding these patterns to .satoriignore`,
	}
}
