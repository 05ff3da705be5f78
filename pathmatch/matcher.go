package pathmatch

import (
	"strings"
	"unicode/utf8"
)

// Separator delimits path segments.
const Separator = "/"

const anySegments = "**"

// Match reports whether path matches the Ant-style pattern.
func Match(pattern, path string) bool {
	if strings.HasPrefix(pattern, Separator) != strings.HasPrefix(path, Separator) {
		return false
	}

	pattDirs := tokenize(pattern)
	pathDirs := tokenize(path)

	pattStart, pattEnd := 0, len(pattDirs)-1
	pathStart, pathEnd := 0, len(pathDirs)-1

	// Leading segments up to the first "**".
	for pattStart <= pattEnd && pathStart <= pathEnd {
		if pattDirs[pattStart] == anySegments {
			break
		}
		if !matchSegment(pattDirs[pattStart], pathDirs[pathStart]) {
			return false
		}
		pattStart++
		pathStart++
	}

	if pathStart > pathEnd {
		if pattStart > pattEnd {
			return strings.HasSuffix(pattern, Separator) == strings.HasSuffix(path, Separator)
		}
		return onlyAnySegments(pattDirs[pattStart : pattEnd+1])
	}
	if pattStart > pattEnd {
		return false
	}

	// Trailing segments back to the last "**".
	for pattStart <= pattEnd && pathStart <= pathEnd {
		if pattDirs[pattEnd] == anySegments {
			break
		}
		if !matchSegment(pattDirs[pattEnd], pathDirs[pathEnd]) {
			return false
		}
		pattEnd--
		pathEnd--
	}
	if pathStart > pathEnd {
		return onlyAnySegments(pattDirs[pattStart : pattEnd+1])
	}

	// Both ends are "**": place every fixed run in between at its
	// earliest position in the remaining path.
	for pattStart != pattEnd && pathStart <= pathEnd {
		next := pattStart + 1
		for next <= pattEnd && pattDirs[next] != anySegments {
			next++
		}
		if next == pattStart+1 {
			pattStart++
			continue
		}

		run := pattDirs[pattStart+1 : next]
		found := -1
		for i := pathStart; i+len(run)-1 <= pathEnd; i++ {
			if matchRun(run, pathDirs[i:i+len(run)]) {
				found = i
				break
			}
		}
		if found < 0 {
			return false
		}
		pattStart = next
		pathStart = found + len(run)
	}

	return onlyAnySegments(pattDirs[pattStart : pattEnd+1])
}

// MatchAny returns the first pattern, in order, that matches path.
func MatchAny(patterns []string, path string) (string, bool) {
	for _, p := range patterns {
		if Match(p, path) {
			return p, true
		}
	}
	return "", false
}

// tokenize splits s on the separator, dropping empty segments.
func tokenize(s string) []string {
	parts := strings.Split(s, Separator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func onlyAnySegments(dirs []string) bool {
	for _, d := range dirs {
		if d != anySegments {
			return false
		}
	}
	return true
}

func matchRun(patterns, segments []string) bool {
	for i := range patterns {
		if !matchSegment(patterns[i], segments[i]) {
			return false
		}
	}
	return true
}

// matchSegment matches a single segment against a pattern containing
// "*" and "?" wildcards. Only the most recent "*" is ever revisited, so
// the cost is bounded by len(pattern)*len(segment).
func matchSegment(pattern, segment string) bool {
	if pattern == "*" {
		return true
	}

	p, s := 0, 0
	starP, starS := -1, 0
	for s < len(segment) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			starP, starS = p, s
			p++
		case p < len(pattern) && pattern[p] == '?':
			_, size := utf8.DecodeRuneInString(segment[s:])
			p++
			s += size
		case p < len(pattern) && pattern[p] == segment[s]:
			p++
			s++
		case starP >= 0:
			_, size := utf8.DecodeRuneInString(segment[starS:])
			starS += size
			p, s = starP+1, starS
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
