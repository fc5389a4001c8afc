package warnings

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		warning string
		want    bool
	}{
		{FilterMustUnsatisfied, true},
		{Newf(SearchPassFailed, "expanded"), true},
		{Newf(RerankerFailed, "timeout"), true},
		{"UNKNOWN_CODE", false},
		{"UNKNOWN_CODE:suffix", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.warning); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.warning, got, tc.want)
		}
	}
}
