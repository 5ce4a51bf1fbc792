package agentloop

import "testing"

func TestProtectedPaths(t *testing.T) {
	p := NewProtectedPaths([]string{".git/**", ".env", "secrets/**", "*.lock"})

	cases := []struct {
		path string
		want bool
	}{
		{".git/config", true},
		{".env", true},
		{"secrets/api_key.txt", true},
		{"package.lock", true},
		{"src/main.go", false},
	}
	for _, tc := range cases {
		if got := p.IsProtected(tc.path); got != tc.want {
			t.Errorf("IsProtected(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
