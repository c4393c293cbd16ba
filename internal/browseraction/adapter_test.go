package browseraction

import (
	"errors"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("context canceled"), true},
		{errors.New("execution context was destroyed"), true},
		{errors.New("net::ERR_ABORTED navigation"), true},
		{errors.New("could not find node with given id"), true},
		{errors.New("selector not found"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestBlockedDomains_CoversDocumentedList(t *testing.T) {
	t.Parallel()

	want := []string{"doubleclick", "googlesyndication", "googletagmanager", "google-analytics", "hotjar", "mouseflow"}
	for _, w := range want {
		found := false
		for _, d := range blockedDomains {
			if containsSubstr(d, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected blocked domain list to cover %q", w)
		}
	}
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
