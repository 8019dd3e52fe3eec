package xyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
)

// Email importance levels.
const (
	ImportanceLow    = "low"
	ImportanceNormal = "normal"
	ImportanceHigh   = "high"
)

// Email is a message sent through the host's mailer. Attachments are local
// file paths.
type Email struct {
	To          string   `json:"to"`
	CC          string   `json:"cc,omitempty"`
	BCC         string   `json:"bcc,omitempty"`
	Subject     string   `json:"subject"`
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body"`
	ButtonText  string   `json:"button_text,omitempty"`
	ButtonURL   string   `json:"button_url,omitempty"`
	Importance  string   `json:"importance,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// emailBody is the JSON part of the send_email form. ButtonText is sent as
// null when unset; the host treats null as "no button".
type emailBody struct {
	To         string            `json:"to"`
	CC         string            `json:"cc,omitempty"`
	BCC        string            `json:"bcc,omitempty"`
	Subject    string            `json:"subject"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body"`
	ButtonText *string           `json:"button_text"`
	ButtonURL  string            `json:"button_url,omitempty"`
	Headers    map[string]string `json:"headers"`
}

// Priority maps an importance level to its X-Priority header value.
func Priority(importance string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(importance)) {
	case ImportanceLow:
		return "5", nil
	case ImportanceNormal, "":
		return "3", nil
	case ImportanceHigh:
		return "1", nil
	default:
		return "", fmt.Errorf("invalid importance %q (want low, normal or high)", importance)
	}
}

// SendEmail posts msg and its attachments as one multipart request.
func (c *Client) SendEmail(ctx context.Context, msg Email) error {
	const op = "send email"

	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%s: no recipient", op)
	}
	priority, err := Priority(msg.Importance)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body := emailBody{
		To:        msg.To,
		CC:        msg.CC,
		BCC:       msg.BCC,
		Subject:   msg.Subject,
		Title:     msg.Title,
		Body:      msg.Body,
		ButtonURL: msg.ButtonURL,
		Headers:   map[string]string{"X-Priority": priority},
	}
	if msg.ButtonText != "" {
		text := msg.ButtonText
		body.ButtonText = &text
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", op, err)
	}

	form, contentType, size, err := multipartBody(map[string]string{"json": string(raw)}, msg.Attachments)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(c.paths.SendEmail, nil), form)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)

	if err := c.do(op, req, nil); err != nil {
		return err
	}
	c.logger.Info("sent email", "to", msg.To, "attachments", len(msg.Attachments), "size", humanize.Bytes(uint64(size)))
	return nil
}
