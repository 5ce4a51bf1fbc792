package agentloop

import "github.com/gobwas/glob"

// ProtectedPaths enforces the protected-path policy of spec §4.5 step
// 6: "Protected paths... are fully configurable via the config file.
// No baseline is hard-coded outside the default config."
type ProtectedPaths struct {
	globs []glob.Glob
}

// NewProtectedPaths compiles patterns, which use `/` as the path
// hierarchy separator (matching the msg_to glob semantics of §4.2).
func NewProtectedPaths(patterns []string) *ProtectedPaths {
	p := &ProtectedPaths{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			continue
		}
		p.globs = append(p.globs, g)
	}
	return p
}

// IsProtected reports whether path matches any configured pattern.
func (p *ProtectedPaths) IsProtected(path string) bool {
	for _, g := range p.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
