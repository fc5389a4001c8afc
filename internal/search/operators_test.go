package search

import "testing"

func TestParseOperators(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  parsedOperators
	}{
		{
			name:  "no operators",
			query: "jwt token validation",
			want:  parsedOperators{Query: "jwt token validation"},
		},
		{
			name:  "single lang operator",
			query: `lang:go token validation`,
			want:  parsedOperators{Lang: []string{"go"}, Query: "token validation"},
		},
		{
			name:  "quoted must operator with rest on next line",
			query: "must:\"exact phrase\" path:internal\nhow does auth work",
			want:  parsedOperators{Must: []string{"exact phrase"}, Path: []string{"internal"}, Query: "how does auth work"},
		},
		{
			name:  "duplicate operators accumulate",
			query: "exclude:vendor exclude:node_modules query text",
			want:  parsedOperators{Exclude: []string{"vendor", "node_modules"}, Query: "query text"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseOperators(tc.query)
			if got.Query != tc.want.Query {
				t.Errorf("Query = %q, want %q", got.Query, tc.want.Query)
			}
			if !equalSlices(got.Lang, tc.want.Lang) {
				t.Errorf("Lang = %v, want %v", got.Lang, tc.want.Lang)
			}
			if !equalSlices(got.Must, tc.want.Must) {
				t.Errorf("Must = %v, want %v", got.Must, tc.want.Must)
			}
			if !equalSlices(got.Path, tc.want.Path) {
				t.Errorf("Path = %v, want %v", got.Path, tc.want.Path)
			}
			if !equalSlices(got.Exclude, tc.want.Exclude) {
				t.Errorf("Exclude = %v, want %v", got.Exclude, tc.want.Exclude)
			}
		})
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
