package report

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/gitlab-report/internal/domain"
)

// ComputeStats aggregates per-author counts and files-per-commit figures for a snapshot.
func ComputeStats(snapshot *domain.ActivitySnapshot) domain.ActivityStats {
	statsMap := make(map[string]*domain.AuthorStats)

	// Helper function to ensure a map entry exists.
	ensureAuthor := func(name string) *domain.AuthorStats {
		if name == "" {
			name = "unknown"
		}
		if _, ok := statsMap[name]; !ok {
			statsMap[name] = &domain.AuthorStats{Name: name}
		}
		return statsMap[name]
	}

	filesPerCommit := make(stats.Float64Data, 0, len(snapshot.Commits))
	for _, c := range snapshot.Commits {
		ensureAuthor(c.AuthorName).Commits++
		filesPerCommit = append(filesPerCommit, float64(len(c.Changes)))
	}
	for _, mr := range snapshot.MergeRequests {
		ensureAuthor(mr.AuthorName).MergeRequests++
	}
	for _, issue := range snapshot.Issues {
		ensureAuthor(issue.AuthorName).Issues++
	}

	// Convert the map to a slice and sort it by author name for consistent output.
	authors := make([]*domain.AuthorStats, 0, len(statsMap))
	commitsPerAuthor := make(stats.Float64Data, 0, len(statsMap))
	for _, a := range statsMap {
		authors = append(authors, a)
		if a.Commits > 0 {
			commitsPerAuthor = append(commitsPerAuthor, float64(a.Commits))
		}
	}
	sort.Slice(authors, func(i, j int) bool {
		return authors[i].Name < authors[j].Name
	})

	return domain.ActivityStats{
		Authors:              authors,
		MeanFilesPerCommit:   orZero(stats.Mean(filesPerCommit)),
		MedianFilesPerCommit: orZero(stats.Median(filesPerCommit)),
		MaxFilesPerCommit:    orZero(stats.Max(filesPerCommit)),
		MeanCommitsPerAuthor: orZero(stats.Mean(commitsPerAuthor)),
	}
}

// orZero maps the NaN/error pair returned for empty input to 0.
func orZero(v float64, err error) float64 {
	if err != nil {
		return 0
	}
	return v
}
