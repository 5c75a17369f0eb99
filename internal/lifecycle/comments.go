package lifecycle

import (
	"context"
	"strings"

	"waterflow.dev/waterflow/internal/githost"
)

// AlreadyPosted reports whether an outcome message with the given identity
// was already posted on the pull request. Outcome comments embed their
// MessageID, so a user who has seen an error for an unchanged condition is
// not spammed on every retrigger.
func AlreadyPosted(comments []githost.Comment, messageID string) bool {
	for _, c := range comments {
		if strings.Contains(c.Text, messageID) {
			return true
		}
	}
	return false
}

// PostOutcome posts a user-facing outcome on the pull request, skipping
// silent outcomes and messages already posted for the same code and revision.
// Returns whether a comment was added.
func PostOutcome(ctx context.Context, host githost.Client, prID int, revision string, out Outcome) (bool, error) {
	if out.Silent() {
		return false, nil
	}
	comments, err := host.ListComments(ctx, prID)
	if err != nil {
		return false, err
	}
	if AlreadyPosted(comments, out.MessageID(revision)) {
		return false, nil
	}
	if _, err := host.AddComment(ctx, prID, RenderComment(out, revision)); err != nil {
		return false, err
	}
	return true, nil
}

// RenderComment formats a user-facing outcome as the comment to post,
// embedding the deduplication identity.
func RenderComment(out Outcome, revision string) string {
	var b strings.Builder
	b.WriteString(out.Message)
	b.WriteString("\n\n<!-- ")
	b.WriteString(out.MessageID(revision))
	b.WriteString(" -->\n")
	return b.String()
}
