package notify

import (
	"fmt"
	"strings"
)

// GitHubIssueCommentEvent is the X-GitHub-Event value of issue comment deliveries.
const GitHubIssueCommentEvent = "issue_comment"

// GitHubUser is the author of a GitHub comment.
type GitHubUser struct {
	Login string `json:"login"`
}

// GitHubIssue identifies the issue a comment was posted on.
type GitHubIssue struct {
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
}

// GitHubComment is a single issue comment.
type GitHubComment struct {
	Body string     `json:"body"`
	User GitHubUser `json:"user"`
}

// IssueCommentPayload is the part of a GitHub issue_comment delivery that gets
// relayed to chat. Other fields of the delivery are ignored.
type IssueCommentPayload struct {
	Action  string        `json:"action"`
	Issue   GitHubIssue   `json:"issue"`
	Comment GitHubComment `json:"comment"`
}

// Relayable reports whether a delivery of the given event type is a newly
// created issue comment. Edits, deletions and other events are not relayed.
func (p IssueCommentPayload) Relayable(event string) bool {
	return event == GitHubIssueCommentEvent && p.Action == "created"
}

// IssueCommentMessage formats a new issue comment as a chat message with the
// comment body quoted.
func IssueCommentMessage(p IssueCommentPayload) string {
	quoted := "> " + strings.ReplaceAll(strings.TrimRight(p.Comment.Body, "\n"), "\n", "\n> ")
	return fmt.Sprintf("💬 **%s** commented on [%s](%s):\n%s",
		p.Comment.User.Login, p.Issue.Title, p.Issue.HTMLURL, quoted)
}
