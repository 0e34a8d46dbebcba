package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/gitlab-report/internal/config"
	"github.com/naka-gawa/gitlab-report/internal/domain"
	"github.com/naka-gawa/gitlab-report/internal/notify"
	"github.com/naka-gawa/gitlab-report/internal/report"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// mockFetcher is a mock implementation of the gateway.ActivityFetcher interface.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchSnapshot(ctx context.Context, projectID string, since time.Time) (*domain.ActivitySnapshot, error) {
	args := m.Called(ctx, projectID, since)
	// The returned snapshot is nil when an error occurs.
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActivitySnapshot), args.Error(1)
}

type mockSummarizer struct {
	mock.Mock
}

func (m *mockSummarizer) Summarize(ctx context.Context, snapshot *domain.ActivitySnapshot) (string, error) {
	args := m.Called(ctx, snapshot)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Deliver(ctx context.Context, projectName, reportPath string, days int) error {
	args := m.Called(ctx, projectName, reportPath, days)
	return args.Error(0)
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(snapshot *domain.ActivitySnapshot, narrative string) (string, error) {
	args := m.Called(snapshot, narrative)
	return args.String(0), args.Error(1)
}

func projectsFor(days int, ids ...string) []config.ProjectConfig {
	projects := make([]config.ProjectConfig, 0, len(ids))
	for _, id := range ids {
		projects = append(projects, config.ProjectConfig{BaseURL: "https://gitlab.example.com", Token: "t", ProjectID: id, Days: days})
	}
	return projects
}

func activeSnapshot(name string) *domain.ActivitySnapshot {
	return &domain.ActivitySnapshot{
		ProjectName: name,
		Commits: []domain.CommitRecord{{
			ID: "abc123", Title: "Add login", AuthorName: "Alice", CreatedAt: fixedNow.Add(-24 * time.Hour),
			Changes: []domain.FileChange{{NewPath: "login.go", NewFile: true, Diff: "+package login"}},
		}},
	}
}

func newTestPipeline(fetcher *mockFetcher, renderer ReportRenderer, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewPipeline(fetcher, renderer, zerolog.Nop(), opts...)
}

func TestPipeline_Run_FirstProjectFailsSecondSucceeds(t *testing.T) {
	dir := t.TempDir()
	since := fixedNow.AddDate(0, 0, -7)

	fetcher := new(mockFetcher)
	fetcher.On("FetchSnapshot", mock.Anything, "1", since).Return(nil, errors.New("gitlab api error"))
	fetcher.On("FetchSnapshot", mock.Anything, "2", since).Return(activeSnapshot("second"), nil)

	p := newTestPipeline(fetcher, report.NewRenderer(dir, report.FormatDetailed))
	result := p.Run(context.Background(), projectsFor(7, "1", "2"))

	assert.True(t, result.Succeeded())
	require.Len(t, result.Projects, 2)
	assert.Equal(t, OutcomeFetchFailed, result.Projects[0].Outcome)
	assert.EqualError(t, result.Projects[0].Err, "gitlab api error")
	assert.Equal(t, OutcomeReported, result.Projects[1].Outcome)
	assert.Equal(t, DeliverySkipped, result.Projects[1].Delivery)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gitlab_changes_report_second.md", entries[0].Name())
	assert.Equal(t, []string{filepath.Join(dir, "gitlab_changes_report_second.md")}, result.Reports())

	fetcher.AssertExpectations(t)
}

func TestPipeline_Run_SummaryFailureStillReports(t *testing.T) {
	dir := t.TempDir()
	snapshot := activeSnapshot("proj")

	fetcher := new(mockFetcher)
	fetcher.On("FetchSnapshot", mock.Anything, "42", mock.Anything).Return(snapshot, nil)
	summarizer := new(mockSummarizer)
	summarizer.On("Summarize", mock.Anything, snapshot).Return("", errors.New("openai unavailable"))

	p := newTestPipeline(fetcher, report.NewRenderer(dir, report.FormatSummary), WithSummarizer(summarizer))
	result := p.Run(context.Background(), projectsFor(7, "42"))

	require.True(t, result.Succeeded())
	res := result.Projects[0]
	assert.Equal(t, OutcomeReported, res.Outcome)
	assert.False(t, res.Narrative)
	assert.EqualError(t, res.Err, "openai unavailable")

	content, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "## Summary")
	assert.Contains(t, string(content), "## Commits")
	assert.Contains(t, string(content), "Add login")

	summarizer.AssertExpectations(t)
}

func TestPipeline_Run_NarrativeIsPassedToRenderer(t *testing.T) {
	snapshot := activeSnapshot("proj")

	fetcher := new(mockFetcher)
	fetcher.On("FetchSnapshot", mock.Anything, "42", mock.Anything).Return(snapshot, nil)
	summarizer := new(mockSummarizer)
	summarizer.On("Summarize", mock.Anything, snapshot).Return("Alice shipped login.", nil)
	renderer := new(mockRenderer)
	renderer.On("Render", snapshot, "Alice shipped login.").Return("out/report.md", nil)
	notifier := new(mockNotifier)
	notifier.On("Deliver", mock.Anything, "proj", "out/report.md", 3).Return(nil)

	p := newTestPipeline(fetcher, renderer, WithSummarizer(summarizer), WithNotifier(notifier))
	result := p.Run(context.Background(), projectsFor(3, "42"))

	require.Len(t, result.Projects, 1)
	assert.Equal(t, ProjectResult{
		ProjectID:   "42",
		ProjectName: "proj",
		Outcome:     OutcomeReported,
		ReportPath:  "out/report.md",
		Narrative:   true,
		Delivery:    DeliveryDelivered,
	}, result.Projects[0])

	renderer.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestPipeline_Run_Delivery(t *testing.T) {
	testCases := []struct {
		name             string
		deliverErr       error
		expectedDelivery Delivery
		expectErr        bool
	}{
		{name: "webhook unset is skipped", deliverErr: notify.ErrNotConfigured, expectedDelivery: DeliverySkipped},
		{name: "delivery error is soft", deliverErr: errors.New("discord down"), expectedDelivery: DeliveryFailed, expectErr: true},
		{name: "delivered", expectedDelivery: DeliveryDelivered},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			fetcher := new(mockFetcher)
			fetcher.On("FetchSnapshot", mock.Anything, "42", mock.Anything).Return(activeSnapshot("proj"), nil)
			notifier := new(mockNotifier)
			notifier.On("Deliver", mock.Anything, "proj", filepath.Join(dir, "gitlab_changes_report_proj.md"), 7).Return(tc.deliverErr)

			p := newTestPipeline(fetcher, report.NewRenderer(dir, report.FormatDetailed), WithNotifier(notifier))
			result := p.Run(context.Background(), projectsFor(7, "42"))

			assert.True(t, result.Succeeded())
			res := result.Projects[0]
			assert.Equal(t, tc.expectedDelivery, res.Delivery)
			assert.FileExists(t, res.ReportPath)
			if tc.expectErr {
				assert.Error(t, res.Err)
			} else {
				assert.NoError(t, res.Err)
			}
			notifier.AssertExpectations(t)
		})
	}
}

func TestPipeline_Run_EmptySnapshot(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("FetchSnapshot", mock.Anything, "42", mock.Anything).Return(&domain.ActivitySnapshot{ProjectName: "quiet"}, nil)
	summarizer := new(mockSummarizer)
	renderer := new(mockRenderer)
	notifier := new(mockNotifier)

	p := newTestPipeline(fetcher, renderer, WithSummarizer(summarizer), WithNotifier(notifier))
	result := p.Run(context.Background(), projectsFor(7, "42"))

	assert.False(t, result.Succeeded())
	assert.Equal(t, OutcomeEmpty, result.Projects[0].Outcome)
	assert.Equal(t, DeliveryNone, result.Projects[0].Delivery)
	summarizer.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
	renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_RenderFailure(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("FetchSnapshot", mock.Anything, "42", mock.Anything).Return(activeSnapshot("proj"), nil)
	renderer := new(mockRenderer)
	renderer.On("Render", mock.Anything, "").Return("", errors.New("disk full"))
	notifier := new(mockNotifier)

	p := newTestPipeline(fetcher, renderer, WithNotifier(notifier))
	result := p.Run(context.Background(), projectsFor(7, "42"))

	assert.False(t, result.Succeeded())
	assert.Equal(t, OutcomeRenderFailed, result.Projects[0].Outcome)
	assert.EqualError(t, result.Projects[0].Err, "disk full")
	notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_WindowCutoff(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("FetchSnapshot", mock.Anything, "a", time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC)).
		Return(&domain.ActivitySnapshot{}, nil)
	fetcher.On("FetchSnapshot", mock.Anything, "b", time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC)).
		Return(&domain.ActivitySnapshot{}, nil)

	p := newTestPipeline(fetcher, new(mockRenderer))
	result := p.Run(context.Background(), projectsFor(14, "a", "b"))

	assert.Len(t, result.Projects, 2)
	fetcher.AssertExpectations(t)
}

func TestPipeline_Run_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := new(mockFetcher)
	p := newTestPipeline(fetcher, new(mockRenderer))
	result := p.Run(ctx, projectsFor(7, "1", "2"))

	assert.Empty(t, result.Projects)
	assert.False(t, result.Succeeded())
	fetcher.AssertNotCalled(t, "FetchSnapshot", mock.Anything, mock.Anything, mock.Anything)
}
