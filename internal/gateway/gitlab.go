// Package gateway provides a gateway to the GitLab API,
// abstracting away the underlying REST client.
package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/gitlab-report/internal/config"
	"github.com/naka-gawa/gitlab-report/internal/domain"
)

const perPage = 100

// ActivityFetcher defines the behavior of a gateway for fetching project activity.
type ActivityFetcher interface {
	FetchSnapshot(ctx context.Context, projectID string, since time.Time) (*domain.ActivitySnapshot, error)
}

// Options configures the GitLab client.
type Options struct {
	BaseURL            string
	Token              string
	TokenType          string // config.TokenTypePrivate or config.TokenTypeOAuth
	InsecureSkipVerify bool
}

// OptionsFromConfig builds gateway options from the GitLab section of the configuration.
func OptionsFromConfig(cfg config.GitLabConfig) Options {
	return Options{
		BaseURL:            cfg.URL,
		Token:              cfg.Token,
		TokenType:          cfg.TokenType,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
}

// GitLabGateway is the concrete implementation of the ActivityFetcher interface.
type GitLabGateway struct {
	client *gitlab.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewGitLabGateway creates a client and authenticates against GitLab by fetching
// the current user. An error here means the credentials are unusable.
func NewGitLabGateway(ctx context.Context, opts Options, logger zerolog.Logger) (*GitLabGateway, error) {
	clientOpts := []gitlab.ClientOptionFunc{
		gitlab.WithBaseURL(opts.BaseURL),
		// One attempt per call; failures surface to the caller as soft project failures.
		gitlab.WithCustomRetryMax(0),
	}
	if opts.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-hosted instances
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(&http.Client{Transport: transport}))
	}

	var (
		client *gitlab.Client
		err    error
	)
	switch opts.TokenType {
	case config.TokenTypeOAuth:
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		client, err = gitlab.NewAuthSourceClient(gitlab.OAuthTokenSource{TokenSource: ts}, clientOpts...)
	default:
		client, err = gitlab.NewClient(opts.Token, clientOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	g := newGitLabGateway(client, logger)
	if err := g.authenticate(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func newGitLabGateway(client *gitlab.Client, logger zerolog.Logger) *GitLabGateway {
	return &GitLabGateway{client: client, logger: logger, now: time.Now}
}

func (g *GitLabGateway) authenticate(ctx context.Context) error {
	user, _, err := g.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to authenticate with GitLab: %w", err)
	}
	g.logger.Debug().Str("user", user.Username).Msg("Authenticated with GitLab")
	return nil
}

// FetchSnapshot retrieves the commits created since the cutoff, with their diffs,
// and the merge requests and issues updated since the same cutoff. Any failure
// aborts the whole snapshot.
func (g *GitLabGateway) FetchSnapshot(ctx context.Context, projectID string, since time.Time) (*domain.ActivitySnapshot, error) {
	log := g.logger.With().Str("project", projectID).Logger()

	project, _, err := g.client.Projects.GetProject(projectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectID, err)
	}

	snapshot := &domain.ActivitySnapshot{
		ProjectID:   projectID,
		ProjectName: domain.NormalizeProjectName(project.Name),
		DisplayName: project.Name,
		Since:       since,
		Until:       g.now(),
	}

	log.Debug().Msg("[1/3] Fetching commit data...")
	if snapshot.Commits, err = g.fetchCommits(ctx, projectID, since, log); err != nil {
		return nil, err
	}
	log.Debug().Msg("[2/3] Fetching merge request data...")
	if snapshot.MergeRequests, err = g.fetchMergeRequests(ctx, projectID, since, log); err != nil {
		return nil, err
	}
	log.Debug().Msg("[3/3] Fetching issue data...")
	if snapshot.Issues, err = g.fetchIssues(ctx, projectID, since, log); err != nil {
		return nil, err
	}

	log.Info().
		Int("commits", len(snapshot.Commits)).
		Int("merge_requests", len(snapshot.MergeRequests)).
		Int("issues", len(snapshot.Issues)).
		Msg("Completed fetching project activity")
	return snapshot, nil
}

func (g *GitLabGateway) fetchCommits(ctx context.Context, projectID string, since time.Time, log zerolog.Logger) ([]domain.CommitRecord, error) {
	opts := &gitlab.ListCommitsOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage},
		Since:       gitlab.Ptr(since),
	}
	var records []domain.CommitRecord
	for {
		commits, resp, err := g.client.Commits.ListCommits(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list commits: %w", err)
		}
		for _, c := range commits {
			changes, err := g.fetchCommitChanges(ctx, projectID, c.ID)
			if err != nil {
				return nil, err
			}
			records = append(records, domain.CommitRecord{
				ID:         c.ID,
				ShortID:    c.ShortID,
				Title:      c.Title,
				AuthorName: c.AuthorName,
				CreatedAt:  timeOrZero(c.CreatedAt),
				WebURL:     c.WebURL,
				Changes:    changes,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		log.Debug().Msg("  Fetching next page of commits...")
	}
	return records, nil
}

func (g *GitLabGateway) fetchCommitChanges(ctx context.Context, projectID, sha string) ([]domain.FileChange, error) {
	opts := &gitlab.GetCommitDiffOptions{ListOptions: gitlab.ListOptions{PerPage: perPage}}
	var changes []domain.FileChange
	for {
		diffs, resp, err := g.client.Commits.GetCommitDiff(projectID, sha, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to get diff for commit %s: %w", sha, err)
		}
		for _, d := range diffs {
			changes = append(changes, domain.FileChange{
				OldPath:     d.OldPath,
				NewPath:     d.NewPath,
				NewFile:     d.NewFile,
				DeletedFile: d.DeletedFile,
				RenamedFile: d.RenamedFile,
				Diff:        d.Diff,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return changes, nil
}

func (g *GitLabGateway) fetchMergeRequests(ctx context.Context, projectID string, since time.Time, log zerolog.Logger) ([]domain.MergeRequestRecord, error) {
	opts := &gitlab.ListProjectMergeRequestsOptions{
		ListOptions:  gitlab.ListOptions{PerPage: perPage},
		State:        gitlab.Ptr("all"),
		UpdatedAfter: gitlab.Ptr(since),
	}
	var records []domain.MergeRequestRecord
	for {
		mrs, resp, err := g.client.MergeRequests.ListProjectMergeRequests(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list merge requests: %w", err)
		}
		for _, mr := range mrs {
			record := domain.MergeRequestRecord{
				IID:       int64(mr.IID),
				Title:     mr.Title,
				State:     mr.State,
				CreatedAt: timeOrZero(mr.CreatedAt),
				UpdatedAt: timeOrZero(mr.UpdatedAt),
				WebURL:    mr.WebURL,
			}
			if mr.Author != nil {
				record.AuthorName = mr.Author.Name
			}
			records = append(records, record)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		log.Debug().Msg("  Fetching next page of merge requests...")
	}
	return records, nil
}

func (g *GitLabGateway) fetchIssues(ctx context.Context, projectID string, since time.Time, log zerolog.Logger) ([]domain.IssueRecord, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		ListOptions:  gitlab.ListOptions{PerPage: perPage},
		State:        gitlab.Ptr("all"),
		UpdatedAfter: gitlab.Ptr(since),
	}
	var records []domain.IssueRecord
	for {
		issues, resp, err := g.client.Issues.ListProjectIssues(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list issues: %w", err)
		}
		for _, issue := range issues {
			record := domain.IssueRecord{
				IID:       int64(issue.IID),
				Title:     issue.Title,
				State:     issue.State,
				CreatedAt: timeOrZero(issue.CreatedAt),
				UpdatedAt: timeOrZero(issue.UpdatedAt),
				WebURL:    issue.WebURL,
			}
			if issue.Author != nil {
				record.AuthorName = issue.Author.Name
			}
			records = append(records, record)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		log.Debug().Msg("  Fetching next page of issues...")
	}
	return records, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
