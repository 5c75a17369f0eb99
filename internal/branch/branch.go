package branch

import (
	"fmt"

	"waterflow.dev/waterflow/internal/git"
)

// Kind is the closed discriminant of managed branch types. Downstream code
// switches on it instead of relying on runtime type identity.
type Kind int

const (
	// KindFeature is a change branch: <prefix>/<issueKey>-<slug>
	KindFeature Kind = iota
	// KindDevelopment is a development line: development/MAJOR.MINOR
	KindDevelopment
	// KindStabilization is a pinned line: stabilization/MAJOR.MINOR.MICRO
	KindStabilization
	// KindHotfix is an independent single-lane destination: hotfix/<label>
	KindHotfix
	// KindRelease is a release pointer: release/MAJOR.MINOR
	KindRelease
	// KindIntegration is a per-change per-destination working branch:
	// w/VERSION/<feature-branch-name>
	KindIntegration
	// KindGhostIntegration is a degenerate integration branch whose storage is
	// the feature branch itself
	KindGhostIntegration
	// KindQueue is one lane's master queue pointer: q/VERSION
	KindQueue
	// KindQueueIntegration is one change's queued lane snapshot:
	// q/PR_ID/VERSION/<feature-branch-name>
	KindQueueIntegration
	// KindUser is a personal branch: user/<label>
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindFeature:
		return "feature"
	case KindDevelopment:
		return "development"
	case KindStabilization:
		return "stabilization"
	case KindHotfix:
		return "hotfix"
	case KindRelease:
		return "release"
	case KindIntegration:
		return "integration"
	case KindGhostIntegration:
		return "ghost-integration"
	case KindQueue:
		return "queue"
	case KindQueueIntegration:
		return "queue-integration"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Branch is an immutable-identity handle to a named ref.
type Branch interface {
	Name() string
	Kind() Kind
	Repo() git.Repo
}

// Destination is a branch that is a valid merge destination and therefore
// participates in cascades and queue lanes.
type Destination interface {
	Branch
	// DestinationVersion is the version the destination's lane is keyed by
	DestinationVersion() Version
}

// info carries the fields every branch value shares: a non-owning repository
// handle for later git operations and the ref name.
type info struct {
	repo git.Repo
	name string
}

func (i info) Name() string   { return i.name }
func (i info) Repo() git.Repo { return i.repo }

// FeatureBranch is a change branch. Cascade producer only.
type FeatureBranch struct {
	info
	// Prefix is one of the fixed feature prefixes (improvement, bugfix, ...)
	Prefix string
	// IssueKey is the upper-cased issue key, empty when absent
	IssueKey string
	// IssueProject is the project part of the issue key, empty when absent
	IssueProject string
	// Label is everything after the prefix
	Label string
}

// Kind implements Branch
func (*FeatureBranch) Kind() Kind { return KindFeature }

// DevelopmentBranch is one development line. Cascade producer and consumer,
// valid merge destination.
type DevelopmentBranch struct {
	info
	Major int
	Minor int
	// LatestMicro is the highest micro tag seen for the line, -1 before any
	// tag is discovered. Mutated during cascade build.
	LatestMicro int
	// HasStabilization records that a stabilization branch shares this line.
	// Set during cascade finalization; shifts the expected target micro.
	HasStabilization bool
}

// Kind implements Branch
func (*DevelopmentBranch) Kind() Kind { return KindDevelopment }

// Version returns the branch's major.minor line
func (b *DevelopmentBranch) Version() Version {
	return Version{Major: b.Major, Minor: b.Minor}
}

// DestinationVersion implements Destination
func (b *DevelopmentBranch) DestinationVersion() Version { return b.Version() }

// TargetMicro is the micro version the next change landing on this line will
// carry: one past the latest tag, or two past when a stabilization branch
// already occupies the next slot.
func (b *DevelopmentBranch) TargetMicro() int {
	offset := 1
	if b.HasStabilization {
		offset = 2
	}
	return b.LatestMicro + offset
}

// StabilizationBranch is a pinned micro line, comparable with a development
// branch by (major, minor[, micro]).
type StabilizationBranch struct {
	info
	Major int
	Minor int
	Micro int
}

// Kind implements Branch
func (*StabilizationBranch) Kind() Kind { return KindStabilization }

// Version returns the branch's pinned version
func (b *StabilizationBranch) Version() Version {
	return Version{Major: b.Major, Minor: b.Minor, Micro: b.Micro, HasMicro: true}
}

// DestinationVersion implements Destination
func (b *StabilizationBranch) DestinationVersion() Version { return b.Version() }

// HotfixBranch is an independent single-lane destination.
type HotfixBranch struct {
	info
	Label string
}

// Kind implements Branch
func (*HotfixBranch) Kind() Kind { return KindHotfix }

// DestinationVersion implements Destination. Hotfix lanes carry no version
// line; they are keyed by the zero version.
func (*HotfixBranch) DestinationVersion() Version { return Version{} }

// ReleaseBranch marks a released line; never a merge destination.
type ReleaseBranch struct {
	info
	Major int
	Minor int
}

// Kind implements Branch
func (*ReleaseBranch) Kind() Kind { return KindRelease }

// IntegrationBranch is the ephemeral per-change, per-destination working
// branch w/VERSION/<feature>. It references its source and destination
// branches by lookup only; it owns neither.
type IntegrationBranch struct {
	info
	Version     Version
	FeatureName string
}

// Kind implements Branch
func (*IntegrationBranch) Kind() Kind { return KindIntegration }

// GhostIntegrationBranch stands in for an integration branch at the nearest
// destination: its storage is the feature branch itself, so no extra branch
// is created and it is never deleted. Built by the integration orchestrator,
// never by the classifier.
type GhostIntegrationBranch struct {
	*FeatureBranch
	Version Version
}

// Kind implements Branch
func (*GhostIntegrationBranch) Kind() Kind { return KindGhostIntegration }

// QueueBranch is the master pointer for one lane's queue.
type QueueBranch struct {
	info
	Version Version
}

// Kind implements Branch
func (*QueueBranch) Kind() Kind { return KindQueue }

// QueueIntegrationBranch is one change's queued, lane-specific integration
// snapshot.
type QueueIntegrationBranch struct {
	info
	PRID        int
	Version     Version
	FeatureName string
}

// Kind implements Branch
func (*QueueIntegrationBranch) Kind() Kind { return KindQueueIntegration }

// NewerThan orders queue entries by ancestor-inclusion: b is newer than other
// when other's snapshot is part of b's history.
func (b *QueueIntegrationBranch) NewerThan(other *QueueIntegrationBranch) (bool, error) {
	return b.repo.IsAncestor(other.Name(), b.Name())
}

// UserBranch is a personal branch; recognized but never managed.
type UserBranch struct {
	info
	Label string
}

// Kind implements Branch
func (*UserBranch) Kind() Kind { return KindUser }
