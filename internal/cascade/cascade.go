// Package cascade derives, from the repository's classified branches and tags,
// the ordered set of destination branches a change must reach and the merge
// paths between development lines.
package cascade

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"waterflow.dev/waterflow/internal/branch"
	wferrors "waterflow.dev/waterflow/internal/errors"
	"waterflow.dev/waterflow/internal/git"
)

var tagPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)$`)

// line groups the development and stabilization branch of one major.minor line.
type line struct {
	version branch.Version // major.minor
	dev     *branch.DevelopmentBranch
	stab    *branch.StabilizationBranch
}

// Cascade owns the ordered line map, the finalized destination list (nearest
// destination first), the ignored branches, and the fix versions a change
// must declare. Built once per job; owned exclusively by the job that built it.
type Cascade struct {
	lines     []*line
	finalized bool

	dstBranches    []branch.Destination
	ignored        []branch.Branch
	targetVersions []string
}

// Build groups the repository's destination branches by version line and
// applies the tags. Branches that are not valid merge destinations are
// discarded silently.
func Build(branches []branch.Branch, tags []string) (*Cascade, error) {
	c := &Cascade{}

	byLine := map[branch.Version]*line{}
	for _, b := range branches {
		switch br := b.(type) {
		case *branch.DevelopmentBranch:
			l := c.lineFor(byLine, br.Version())
			l.dev = br
		case *branch.StabilizationBranch:
			l := c.lineFor(byLine, br.Version().Line())
			if l.stab != nil {
				return nil, fmt.Errorf("%w: %s and %s",
					wferrors.ErrMultipleStabilizationBranches, l.stab.Name(), br.Name())
			}
			l.stab = br
		default:
			// Not a cascade participant.
		}
	}

	c.lines = make([]*line, 0, len(byLine))
	for _, l := range byLine {
		c.lines = append(c.lines, l)
	}
	sort.Slice(c.lines, func(i, j int) bool {
		return c.lines[i].version.Compare(c.lines[j].version) < 0
	})

	if err := c.applyTags(tags); err != nil {
		return nil, err
	}

	return c, nil
}

// BuildFromRepo enumerates and classifies the repository's branches and tags,
// then builds the cascade from them.
func BuildFromRepo(repo git.Repo) (*Cascade, error) {
	names, err := repo.RemoteBranches()
	if err != nil {
		return nil, err
	}
	var branches []branch.Branch
	for _, name := range names {
		b, err := branch.Classify(repo, name)
		if err != nil {
			// Unmanaged ref; not our job.
			continue
		}
		branches = append(branches, b)
	}
	tags, err := repo.Tags()
	if err != nil {
		return nil, err
	}
	return Build(branches, tags)
}

func (c *Cascade) lineFor(byLine map[branch.Version]*line, v branch.Version) *line {
	if l, ok := byLine[v]; ok {
		return l
	}
	l := &line{version: v}
	byLine[v] = l
	return l
}

// applyTags raises each line's recorded micro to the highest released tag. A
// live stabilization branch at or below an existing tag should have been
// archived and fails the build.
func (c *Cascade) applyTags(tags []string) error {
	for _, tag := range tags {
		m := tagPattern.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		micro, _ := strconv.Atoi(m[3])

		l := c.findLine(branch.Version{Major: major, Minor: minor})
		if l == nil {
			continue
		}
		if l.stab != nil && l.stab.Micro <= micro {
			return fmt.Errorf("%w: %s is already tagged (%s)",
				wferrors.ErrDeprecatedStabilizationBranch, l.stab.Name(), tag)
		}
		if l.dev != nil && micro > l.dev.LatestMicro {
			l.dev.LatestMicro = micro
		}
	}
	return nil
}

func (c *Cascade) findLine(v branch.Version) *line {
	for _, l := range c.lines {
		if l.version == v.Line() {
			return l
		}
	}
	return nil
}

// MergePaths returns every maximal chain of destination branches: the main
// chain from the oldest development line to the newest, plus one chain per
// stabilization branch that re-joins the main chain at its own development
// line. Used by the queue collection to verify per-lane inclusion.
func (c *Cascade) MergePaths() [][]branch.Destination {
	var mainChain []branch.Destination
	for _, l := range c.lines {
		if l.dev != nil {
			mainChain = append(mainChain, l.dev)
		}
	}

	var paths [][]branch.Destination
	if len(mainChain) > 0 {
		paths = append(paths, mainChain)
	}

	for i, l := range c.lines {
		if l.stab == nil {
			continue
		}
		chain := []branch.Destination{l.stab}
		for _, rest := range c.lines[i:] {
			if rest.dev != nil {
				chain = append(chain, rest.dev)
			}
		}
		paths = append(paths, chain)
	}

	return paths
}

// Finalize fixes the cascade on a concrete destination branch: every line
// before the destination is ignored, every line from the destination onward
// becomes a target, and the expected fix versions are computed.
func (c *Cascade) Finalize(dst branch.Branch) error {
	switch d := dst.(type) {
	case *branch.HotfixBranch:
		// A hotfix is an independent single-lane destination: the cascade
		// degenerates to the hotfix branch itself and declares no fix versions.
		c.ignoreAllLines()
		c.dstBranches = append(c.dstBranches, d)
		c.finalized = true
		return nil
	case *branch.DevelopmentBranch:
		return c.finalizeVersioned(d)
	case *branch.StabilizationBranch:
		return c.finalizeVersioned(d)
	default:
		return fmt.Errorf("%w: %s is not a merge destination",
			wferrors.ErrUnrecognizedBranchPattern, dst.Name())
	}
}

func (c *Cascade) finalizeVersioned(dst branch.Destination) error {
	dstLine := dst.DestinationVersion().Line()
	_, dstIsDev := dst.(*branch.DevelopmentBranch)

	if l := c.findLine(dstLine); l == nil || (dstIsDev && l.dev == nil) {
		// Nobody created the destination's line; refuse to force-merge into it.
		if dstIsDev {
			return fmt.Errorf("%w: %s", wferrors.ErrDevBranchDoesNotExist, dst.Name())
		}
		return fmt.Errorf("%w: no line for %s", wferrors.ErrDevBranchDoesNotExist, dst.Name())
	}

	include := false
	var kept []*line
	for _, l := range c.lines {
		if !include && l.version == dstLine {
			include = true
		}
		if !include {
			c.ignoreLine(l)
			continue
		}

		// The stateful stabilization flag must be recorded before target
		// versions are computed: it shifts the development line's expected
		// micro by one extra slot.
		if l.dev != nil && l.stab != nil {
			l.dev.HasStabilization = true
		}

		if l.stab != nil {
			explicit := l.version == dstLine && !dstIsDev
			if explicit {
				c.dstBranches = append(c.dstBranches, l.stab)
			} else {
				c.ignored = append(c.ignored, l.stab)
				l.stab = nil
			}
		}
		if l.dev != nil {
			c.dstBranches = append(c.dstBranches, l.dev)
		}
		kept = append(kept, l)
	}

	if len(c.dstBranches) == 0 {
		return fmt.Errorf("%w: destination %s", wferrors.ErrNotASingleDevBranch, dst.Name())
	}

	c.lines = kept
	c.setTargetVersions()
	c.finalized = true
	return nil
}

func (c *Cascade) ignoreAllLines() {
	for _, l := range c.lines {
		c.ignoreLine(l)
	}
	c.lines = nil
}

func (c *Cascade) ignoreLine(l *line) {
	if l.stab != nil {
		c.ignored = append(c.ignored, l.stab)
	}
	if l.dev != nil {
		c.ignored = append(c.ignored, l.dev)
	}
}

// setTargetVersions computes one expected fix version per retained line, in
// cascade order: the stabilization micro when one is retained, otherwise the
// development line's next free micro slot.
func (c *Cascade) setTargetVersions() {
	for _, l := range c.lines {
		switch {
		case l.stab != nil:
			c.targetVersions = append(c.targetVersions,
				fmt.Sprintf("%d.%d.%d", l.version.Major, l.version.Minor, l.stab.Micro))
		case l.dev != nil:
			c.targetVersions = append(c.targetVersions,
				fmt.Sprintf("%d.%d.%d", l.version.Major, l.version.Minor, l.dev.TargetMicro()))
		}
	}
}

// Validate re-walks the finalized cascade and asserts the repository's
// structural invariants: dev/stabilization micro pairing, and each earlier
// destination contained in every later one. The primary defense against a
// manually-edited or corrupted repository.
func (c *Cascade) Validate() error {
	if !c.finalized {
		return fmt.Errorf("cascade not finalized")
	}

	for _, l := range c.lines {
		if l.dev != nil && l.stab != nil {
			if l.dev.LatestMicro+1 != l.stab.Micro {
				return fmt.Errorf("%w: %s has micro %d but %s expects %d",
					wferrors.ErrVersionMismatch, l.stab.Name(), l.stab.Micro,
					l.dev.Name(), l.dev.LatestMicro+1)
			}
		}
	}

	for i := 1; i < len(c.dstBranches); i++ {
		prev := c.dstBranches[i-1]
		cur := c.dstBranches[i]
		repo := cur.Repo()
		if repo == nil {
			continue
		}
		ok, err := repo.IsAncestor(prev.Name(), cur.Name())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s does not contain %s",
				wferrors.ErrDevBranchesNotSelfContained, cur.Name(), prev.Name())
		}
	}

	return nil
}

// DestinationBranches returns the finalized destination list, nearest first.
func (c *Cascade) DestinationBranches() []branch.Destination {
	return c.dstBranches
}

// IgnoredBranches returns the branches the finalization excluded.
func (c *Cascade) IgnoredBranches() []branch.Branch {
	return c.ignored
}

// TargetVersions returns the fix versions a change must declare, in cascade order.
func (c *Cascade) TargetVersions() []string {
	return c.targetVersions
}

// Finalized reports whether a concrete destination has been applied.
func (c *Cascade) Finalized() bool {
	return c.finalized
}
