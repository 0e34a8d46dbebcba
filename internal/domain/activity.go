// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"strings"
	"time"
)

// Change type labels, in precedence order.
const (
	ChangeNewFile  = "new file"
	ChangeDeleted  = "deleted"
	ChangeRenamed  = "renamed"
	ChangeModified = "modified"
)

// FileChange is one file touched by a commit, as reported by the commit diff endpoint.
type FileChange struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
	RenamedFile bool   `json:"renamed_file"`
	Diff        string `json:"diff"`
}

// ChangeType returns the label for the change. The flags are checked in the order
// new, deleted, renamed, so a change carrying several flags gets the first match.
func (c FileChange) ChangeType() string {
	switch {
	case c.NewFile:
		return ChangeNewFile
	case c.DeletedFile:
		return ChangeDeleted
	case c.RenamedFile:
		return ChangeRenamed
	default:
		return ChangeModified
	}
}

// CommitRecord is a commit inside the window together with its per-file changes.
type CommitRecord struct {
	ID         string       `json:"id"`
	ShortID    string       `json:"short_id"`
	Title      string       `json:"title"`
	AuthorName string       `json:"author"`
	CreatedAt  time.Time    `json:"date"`
	WebURL     string       `json:"url,omitempty"`
	Changes    []FileChange `json:"changes"`
}

// MergeRequestRecord is a merge request updated inside the window.
type MergeRequestRecord struct {
	IID        int64     `json:"id"`
	Title      string    `json:"title"`
	AuthorName string    `json:"author"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"date"`
	UpdatedAt  time.Time `json:"updated_at"`
	WebURL     string    `json:"url"`
}

// IssueRecord is an issue updated inside the window.
type IssueRecord struct {
	IID        int64     `json:"id"`
	Title      string    `json:"title"`
	AuthorName string    `json:"author"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"date"`
	UpdatedAt  time.Time `json:"updated_at"`
	WebURL     string    `json:"url"`
}

// ActivitySnapshot bundles everything fetched for one project in a single run.
// All three sequences are filtered against the same Since cutoff.
type ActivitySnapshot struct {
	ProjectID     string
	ProjectName   string // normalized, used for file names
	DisplayName   string
	Since         time.Time
	Until         time.Time
	Commits       []CommitRecord
	MergeRequests []MergeRequestRecord
	Issues        []IssueRecord
}

// IsEmpty reports whether the snapshot holds no commits, merge requests or issues.
func (s *ActivitySnapshot) IsEmpty() bool {
	return s == nil || (len(s.Commits) == 0 && len(s.MergeRequests) == 0 && len(s.Issues) == 0)
}

var projectNameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")

// NormalizeProjectName lowercases name and replaces spaces (and path separators) with underscores.
func NormalizeProjectName(name string) string {
	return projectNameReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}
