package branch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
)

// FeaturePrefixes is the fixed vocabulary of feature branch prefixes.
var FeaturePrefixes = []string{
	"improvement", "bugfix", "feature", "project",
	"documentation", "design", "dependabot",
}

var (
	stabilizationPattern = regexp.MustCompile(`^stabilization/(\d+)\.(\d+)\.(\d+)$`)
	developmentPattern   = regexp.MustCompile(`^development/(\d+)\.(\d+)$`)
	releasePattern       = regexp.MustCompile(`^release/(\d+)\.(\d+)$`)
	queuePattern         = regexp.MustCompile(`^q/(\d+\.\d+(?:\.\d+)?)$`)
	queueIntPattern      = regexp.MustCompile(`^q/(\d+)/(\d+\.\d+(?:\.\d+)?)/(.+)$`)
	featurePattern       = regexp.MustCompile(`^(` + strings.Join(FeaturePrefixes, "|") + `)/(.+)$`)
	hotfixPattern        = regexp.MustCompile(`^hotfix/(.+)$`)
	integrationPattern   = regexp.MustCompile(`^w/(\d+\.\d+(?:\.\d+)?)/(.+)$`)
	userPattern          = regexp.MustCompile(`^user/(.+)$`)

	// Issue keys are matched case-insensitively and normalized to upper-case.
	issueKeyPattern = regexp.MustCompile(`(?i)^([A-Z0-9_]+)-([0-9]+)`)
)

// Classify parses a branch name into a typed branch value. Patterns are tried
// in a fixed precedence order and the first structural match wins. The result
// is deterministic and total over any ref name: anything unrecognized returns
// ErrUnrecognizedBranchPattern, which callers use to mean "not a branch I
// manage". No side effects beyond object construction.
func Classify(repo git.Repo, name string) (Branch, error) {
	base := info{repo: repo, name: name}

	if m := stabilizationPattern.FindStringSubmatch(name); m != nil {
		return &StabilizationBranch{
			info:  base,
			Major: atoi(m[1]),
			Minor: atoi(m[2]),
			Micro: atoi(m[3]),
		}, nil
	}

	if m := developmentPattern.FindStringSubmatch(name); m != nil {
		return &DevelopmentBranch{
			info:        base,
			Major:       atoi(m[1]),
			Minor:       atoi(m[2]),
			LatestMicro: -1,
		}, nil
	}

	if m := releasePattern.FindStringSubmatch(name); m != nil {
		return &ReleaseBranch{
			info:  base,
			Major: atoi(m[1]),
			Minor: atoi(m[2]),
		}, nil
	}

	if m := queuePattern.FindStringSubmatch(name); m != nil {
		version, err := ParseVersion(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", wferrors.ErrUnrecognizedBranchPattern, name)
		}
		return &QueueBranch{info: base, Version: version}, nil
	}

	if m := queueIntPattern.FindStringSubmatch(name); m != nil {
		version, err := ParseVersion(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", wferrors.ErrUnrecognizedBranchPattern, name)
		}
		return &QueueIntegrationBranch{
			info:        base,
			PRID:        atoi(m[1]),
			Version:     version,
			FeatureName: m[3],
		}, nil
	}

	if m := featurePattern.FindStringSubmatch(name); m != nil {
		fb := &FeatureBranch{
			info:   base,
			Prefix: m[1],
			Label:  m[2],
		}
		if key := issueKeyPattern.FindStringSubmatch(m[2]); key != nil {
			fb.IssueProject = strings.ToUpper(key[1])
			fb.IssueKey = fb.IssueProject + "-" + key[2]
		}
		return fb, nil
	}

	if m := hotfixPattern.FindStringSubmatch(name); m != nil {
		return &HotfixBranch{info: base, Label: m[1]}, nil
	}

	if m := integrationPattern.FindStringSubmatch(name); m != nil {
		version, err := ParseVersion(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", wferrors.ErrUnrecognizedBranchPattern, name)
		}
		return &IntegrationBranch{
			info:        base,
			Version:     version,
			FeatureName: m[2],
		}, nil
	}

	if m := userPattern.FindStringSubmatch(name); m != nil {
		return &UserBranch{info: base, Label: m[1]}, nil
	}

	return nil, fmt.Errorf("%w: %s", wferrors.ErrUnrecognizedBranchPattern, name)
}

// IntegrationBranchName builds the w/VERSION/<feature> name for a destination
// version and feature branch.
func IntegrationBranchName(version Version, featureName string) string {
	return fmt.Sprintf("w/%s/%s", version, featureName)
}

// QueueBranchName builds the q/VERSION lane master name.
func QueueBranchName(version Version) string {
	return fmt.Sprintf("q/%s", version)
}

// QueueIntegrationBranchName builds the q/PR_ID/VERSION/<feature> entry name.
func QueueIntegrationBranchName(prID int, version Version, featureName string) string {
	return fmt.Sprintf("q/%d/%s/%s", prID, version, featureName)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
