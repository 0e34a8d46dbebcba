// Package notify delivers rendered reports to a Discord channel through a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by Deliver when no webhook URL is set.
var ErrNotConfigured = errors.New("discord webhook URL is not configured")

// Notifier delivers a rendered report file.
type Notifier interface {
	Deliver(ctx context.Context, projectName, reportPath string, days int) error
}

// DiscordNotifier posts to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	http       *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier creates a notifier. A nil httpClient gets a client with a 30s timeout.
func NewDiscordNotifier(webhookURL string, httpClient *http.Client, logger zerolog.Logger) *DiscordNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DiscordNotifier{webhookURL: webhookURL, http: httpClient, logger: logger}
}

// Deliver sends a short header message naming the project and window, then uploads
// the report as an attachment. The file is checked before anything is sent.
func (n *DiscordNotifier) Deliver(ctx context.Context, projectName, reportPath string, days int) error {
	if n.webhookURL == "" {
		return ErrNotConfigured
	}
	content, err := os.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	if err := n.SendMessage(ctx, HeaderMessage(projectName, days)); err != nil {
		return err
	}
	if err := n.SendFile(ctx, filepath.Base(reportPath), content); err != nil {
		return err
	}
	n.logger.Info().Str("project", projectName).Str("file", reportPath).Msg("Report delivered to Discord")
	return nil
}

// HeaderMessage is the text posted ahead of the attachment.
func HeaderMessage(projectName string, days int) string {
	return fmt.Sprintf("**GitLab changes report** for `%s` (last %d %s)", projectName, days, pluralDays(days))
}

// SendMessage posts a plain text message.
func (n *DiscordNotifier) SendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{"content": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord message: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return n.do(req, "discord message")
}

// SendFile uploads content as an attachment named fileName.
func (n *DiscordNotifier) SendFile(ctx context.Context, fileName string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(map[string]any{
		"attachments": []map[string]any{{"id": 0, "filename": fileName}},
	})
	if err != nil {
		return err
	}
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return fmt.Errorf("discord upload: %w", err)
	}
	part, err := mw.CreateFormFile("files[0]", fileName)
	if err != nil {
		return fmt.Errorf("discord upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("discord upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("discord upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, &buf)
	if err != nil {
		return fmt.Errorf("discord upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return n.do(req, "discord upload")
}

func (n *DiscordNotifier) do(req *http.Request, op string) error {
	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s status=%d body=%s", op, resp.StatusCode, string(body))
	}
	return nil
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
