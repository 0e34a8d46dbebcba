package domain

// AuthorStats holds the activity counts for a single author within a snapshot.
type AuthorStats struct {
	Name          string `json:"name"`
	Commits       int    `json:"commits"`
	MergeRequests int    `json:"merge_requests"`
	Issues        int    `json:"issues"`
}

// ActivityStats is the statistics block printed at the top of a report.
type ActivityStats struct {
	Authors              []*AuthorStats `json:"authors"`
	MeanFilesPerCommit   float64        `json:"mean_files_per_commit"`
	MedianFilesPerCommit float64        `json:"median_files_per_commit"`
	MaxFilesPerCommit    float64        `json:"max_files_per_commit"`
	MeanCommitsPerAuthor float64        `json:"mean_commits_per_author"`
}
