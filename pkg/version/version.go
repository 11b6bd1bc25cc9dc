package version

import "github.com/Masterminds/semver"

// DevelopmentGitVersion marks builds without an injected version.
const DevelopmentGitVersion = "v0.0.0-dev"

// gitVersion is injected by the build via
// -ldflags "-X github.com/nodepool-project/nodepool/pkg/version.gitVersion=...".
var gitVersion = DevelopmentGitVersion

// Get returns the version string of this build.
func Get() string {
	return gitVersion
}

// SemVer returns the build version as semver, falling back to 0.0.0 when the
// injected string does not parse.
func SemVer() *semver.Version {
	v, err := semver.NewVersion(gitVersion)
	if err != nil {
		return semver.MustParse("0.0.0")
	}
	return v
}
