// Package report renders an activity snapshot into a Markdown document on disk.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/naka-gawa/gitlab-report/internal/domain"
)

// ErrEmptySnapshot is returned when there is nothing to report. No file is written.
var ErrEmptySnapshot = errors.New("snapshot has no commits, merge requests or issues")

// Format selects how commits, merge requests and issues are laid out.
type Format string

const (
	// FormatDetailed writes a section per item, with diff blocks for commits.
	FormatDetailed Format = "detailed"
	// FormatSummary writes one bullet per item, commits grouped by author.
	FormatSummary Format = "summary"
)

const (
	fileNamePrefix = "gitlab_changes_report_"
	dateLayout     = "2006-01-02"
)

// Renderer writes report files into a single output directory.
type Renderer struct {
	outputDir string
	format    Format
}

// NewRenderer creates a renderer. An unknown format falls back to FormatDetailed.
func NewRenderer(outputDir string, format Format) *Renderer {
	if outputDir == "" {
		outputDir = "."
	}
	if format != FormatSummary {
		format = FormatDetailed
	}
	return &Renderer{outputDir: outputDir, format: format}
}

// Path returns the report path for a project, derived from its normalized name.
func (r *Renderer) Path(projectName string) string {
	return filepath.Join(r.outputDir, fileNamePrefix+domain.NormalizeProjectName(projectName)+".md")
}

// Render writes the report for snapshot and returns its path. narrative may be
// empty, in which case the summary block is omitted.
func (r *Renderer) Render(snapshot *domain.ActivitySnapshot, narrative string) (string, error) {
	doc, err := r.Document(snapshot, narrative)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := r.Path(snapshot.ProjectName)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}

// Document builds the Markdown text for snapshot without touching the filesystem.
func (r *Renderer) Document(snapshot *domain.ActivitySnapshot, narrative string) (string, error) {
	if snapshot.IsEmpty() {
		return "", ErrEmptySnapshot
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# GitLab Changes Report - %s\n\n", snapshot.ProjectName)
	if !snapshot.Since.IsZero() && !snapshot.Until.IsZero() {
		fmt.Fprintf(&b, "Period: %s to %s\n\n", snapshot.Since.Format(dateLayout), snapshot.Until.Format(dateLayout))
	}

	if narrative = strings.TrimSpace(narrative); narrative != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(narrative)
		b.WriteString("\n\n")
	}

	writeStats(&b, snapshot, ComputeStats(snapshot))

	switch r.format {
	case FormatSummary:
		writeCommitSummary(&b, snapshot.Commits)
		writeItemSummary(&b, "Merge Requests", "merge requests", "!", mergeRequestItems(snapshot.MergeRequests))
		writeItemSummary(&b, "Issues", "issues", "#", issueItems(snapshot.Issues))
	default:
		writeCommitDetails(&b, snapshot.Commits)
		writeItemDetails(&b, "Merge Requests", "merge requests", "!", mergeRequestItems(snapshot.MergeRequests))
		writeItemDetails(&b, "Issues", "issues", "#", issueItems(snapshot.Issues))
	}
	return b.String(), nil
}

func writeStats(b *strings.Builder, snapshot *domain.ActivitySnapshot, st domain.ActivityStats) {
	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(b, "- **Commits**: %d\n", len(snapshot.Commits))
	fmt.Fprintf(b, "- **Merge requests**: %d\n", len(snapshot.MergeRequests))
	fmt.Fprintf(b, "- **Issues**: %d\n", len(snapshot.Issues))
	if len(snapshot.Commits) > 0 {
		fmt.Fprintf(b, "- **Files per commit**: mean %.1f, median %.1f, max %.0f\n",
			st.MeanFilesPerCommit, st.MedianFilesPerCommit, st.MaxFilesPerCommit)
		fmt.Fprintf(b, "- **Commits per author**: mean %.1f\n", st.MeanCommitsPerAuthor)
	}
	b.WriteString("\n| Author | Commits | Merge requests | Issues |\n|---|---|---|---|\n")
	for _, a := range st.Authors {
		fmt.Fprintf(b, "| %s | %d | %d | %d |\n", a.Name, a.Commits, a.MergeRequests, a.Issues)
	}
	b.WriteString("\n")
}

func writeCommitDetails(b *strings.Builder, commits []domain.CommitRecord) {
	b.WriteString("## Commits\n\n")
	if len(commits) == 0 {
		b.WriteString("No commits in the specified time period.\n\n")
		return
	}
	for _, c := range commits {
		fmt.Fprintf(b, "### %s\n\n", c.Title)
		fmt.Fprintf(b, "- **Commit ID**: %s\n", c.ID)
		fmt.Fprintf(b, "- **Author**: %s\n", c.AuthorName)
		fmt.Fprintf(b, "- **Date**: %s\n\n", formatTime(c.CreatedAt))

		if len(c.Changes) == 0 {
			continue
		}
		b.WriteString("#### Changes\n\n")
		for _, ch := range c.Changes {
			fmt.Fprintf(b, "**%s**: %s\n\n", changeLabel(ch), ch.NewPath)
			if ch.Diff != "" {
				b.WriteString("```diff\n")
				b.WriteString(strings.TrimRight(ch.Diff, "\n"))
				b.WriteString("\n```\n\n")
			}
		}
	}
}

func writeCommitSummary(b *strings.Builder, commits []domain.CommitRecord) {
	b.WriteString("## Commits\n\n")
	if len(commits) == 0 {
		b.WriteString("No commits in the specified time period.\n\n")
		return
	}

	byAuthor := make(map[string][]domain.CommitRecord)
	var authors []string
	for _, c := range commits {
		if _, ok := byAuthor[c.AuthorName]; !ok {
			authors = append(authors, c.AuthorName)
		}
		byAuthor[c.AuthorName] = append(byAuthor[c.AuthorName], c)
	}
	sort.Strings(authors)

	for _, author := range authors {
		list := byAuthor[author]
		fmt.Fprintf(b, "### %s (%d %s)\n\n", author, len(list), plural(len(list), "commit", "commits"))
		for _, c := range list {
			fmt.Fprintf(b, "- **%s**: %s (%s, %s)\n", c.AuthorName, c.Title, shortID(c), formatDate(c.CreatedAt))
		}
		b.WriteString("\n")
	}
}

// item is the common shape of merge requests and issues in a report.
type item struct {
	IID        int64
	Title      string
	AuthorName string
	State      string
	CreatedAt  time.Time
	WebURL     string
}

func mergeRequestItems(mrs []domain.MergeRequestRecord) []item {
	items := make([]item, 0, len(mrs))
	for _, mr := range mrs {
		items = append(items, item{mr.IID, mr.Title, mr.AuthorName, mr.State, mr.CreatedAt, mr.WebURL})
	}
	return items
}

func issueItems(issues []domain.IssueRecord) []item {
	items := make([]item, 0, len(issues))
	for _, issue := range issues {
		items = append(items, item{issue.IID, issue.Title, issue.AuthorName, issue.State, issue.CreatedAt, issue.WebURL})
	}
	return items
}

func writeItemDetails(b *strings.Builder, heading, noun, sigil string, items []item) {
	fmt.Fprintf(b, "## %s\n\n", heading)
	if len(items) == 0 {
		fmt.Fprintf(b, "No %s in the specified time period.\n\n", noun)
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "### %s\n\n", it.Title)
		fmt.Fprintf(b, "- **ID**: %s%d\n", sigil, it.IID)
		fmt.Fprintf(b, "- **Author**: %s\n", it.AuthorName)
		fmt.Fprintf(b, "- **State**: %s\n", it.State)
		fmt.Fprintf(b, "- **Date**: %s\n", formatTime(it.CreatedAt))
		fmt.Fprintf(b, "- **URL**: %s\n\n", it.WebURL)
	}
}

func writeItemSummary(b *strings.Builder, heading, noun, sigil string, items []item) {
	fmt.Fprintf(b, "## %s\n\n", heading)
	if len(items) == 0 {
		fmt.Fprintf(b, "No %s in the specified time period.\n\n", noun)
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- [%s%d](%s) %s by %s [%s] (%s)\n", sigil, it.IID, it.WebURL, it.Title, it.AuthorName, it.State, formatDate(it.CreatedAt))
	}
	b.WriteString("\n")
}

// changeLabel capitalizes the change type for headings ("New file", "Deleted", ...).
func changeLabel(ch domain.FileChange) string {
	t := ch.ChangeType()
	return strings.ToUpper(t[:1]) + t[1:]
}

func shortID(c domain.CommitRecord) string {
	if c.ShortID != "" {
		return c.ShortID
	}
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(dateLayout)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
