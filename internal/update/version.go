package update

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	version "github.com/knqyf263/go-rpm-version"
)

// NormalizeVersion strips the "v" prefix of release tags.
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// CompareVersions returns -1, 0 or 1. Semantic versions are compared by precedence, anything
// else segment by segment like rpm does.
func CompareVersions(a, b string) int {
	a, b = NormalizeVersion(a), NormalizeVersion(b)
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return version.NewVersion(a).Compare(version.NewVersion(b))
}
