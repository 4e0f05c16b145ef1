package catalog

import "golang.org/x/mod/semver"

// normalize prepends "v" if absent, since golang.org/x/mod/semver requires
// the leading v that GitHub release tag names usually omit.
func normalize(tagName string) string {
	if len(tagName) > 0 && tagName[0] == 'v' {
		return tagName
	}
	return "v" + tagName
}

// isPrerelease reports whether tagName parses as semver and carries a
// prerelease component (e.g. "2.0.0-rc1"). Tags that don't parse as semver
// at all are not considered prerelease here; callers that need "parses
// cleanly" should check isValidSemver separately.
func isPrerelease(tagName string) bool {
	v := normalize(tagName)
	if !semver.IsValid(v) {
		return false
	}
	return semver.Prerelease(v) != ""
}

// isValidSemver reports whether tagName parses as a semantic version once
// normalized.
func isValidSemver(tagName string) bool {
	return semver.IsValid(normalize(tagName))
}

// compareTags orders two tag names by semver. Both must already be known
// valid (callers filter with isValidSemver first).
func compareTags(a, b string) int {
	return semver.Compare(normalize(a), normalize(b))
}
