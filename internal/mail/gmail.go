// Package mail is a narrow Gmail REST client: list, read, send, reply.
// Just enough surface for the voice handlers, nothing resembling a full
// email client.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const apiBase = "https://gmail.googleapis.com/gmail/v1/users/me"

type Email struct {
	ID       string
	ThreadID string
	FromName string
	FromAddr string // full From header, kept for replies
	Subject  string
	Date     string
	Body     string
}

type Client struct {
	http *http.Client
}

// NewClient wraps an authenticated http client (see Authenticate).
func NewClient(httpClient *http.Client) *Client {
	return &Client{http: httpClient}
}

// List returns up to max message summaries matching the Gmail query.
func (c *Client) List(ctx context.Context, query string, max int) ([]Email, error) {
	if query == "" {
		query = "is:unread"
	}
	if max <= 0 {
		max = 5
	}

	u := fmt.Sprintf("%s/messages?q=%s&maxResults=%d", apiBase, url.QueryEscape(query), max)
	var listing struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.getJSON(ctx, u, &listing); err != nil {
		return nil, err
	}

	var out []Email
	for _, m := range listing.Messages {
		meta, err := c.metadata(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// Read fetches one message in full and extracts its plain-text body,
// truncated for spoken delivery.
func (c *Client) Read(ctx context.Context, id string) (Email, error) {
	var msg message
	u := fmt.Sprintf("%s/messages/%s?format=full", apiBase, id)
	if err := c.getJSON(ctx, u, &msg); err != nil {
		return Email{}, err
	}

	e := emailFromHeaders(msg)
	e.Body = truncateRunes(plainBody(msg.Payload), 500)
	return e, nil
}

// Send delivers a new message. attachmentPath, when non-empty, attaches
// the file (the camera -> mail handoff).
func (c *Client) Send(ctx context.Context, to, subject, body, attachmentPath string) error {
	raw, err := buildMIME(to, subject, body, nil, attachmentPath)
	if err != nil {
		return err
	}
	return c.send(ctx, raw, "")
}

// Reply answers an existing message on its thread, honoring Reply-To
// and threading headers. Returns the display name it replied to.
func (c *Client) Reply(ctx context.Context, id, body, toOverride string) (string, error) {
	var msg message
	u := fmt.Sprintf("%s/messages/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject&metadataHeaders=Message-ID&metadataHeaders=References&metadataHeaders=Reply-To", apiBase, id)
	if err := c.getJSON(ctx, u, &msg); err != nil {
		return "", err
	}

	h := headerMap(msg.Payload.Headers)

	toRaw := toOverride
	if toRaw == "" {
		toRaw = h["Reply-To"]
	}
	if toRaw == "" {
		toRaw = h["From"]
	}
	to := ExtractAddress(toRaw)
	if to == "" {
		return "", fmt.Errorf("no reply address on message %s", id)
	}

	subject := h["Subject"]
	if !strings.HasPrefix(subject, "Re:") {
		subject = "Re: " + subject
	}

	extra := map[string]string{}
	if mid := h["Message-ID"]; mid != "" {
		extra["In-Reply-To"] = mid
		extra["References"] = strings.TrimSpace(h["References"] + " " + mid)
	}

	raw, err := buildMIME(to, subject, body, extra, "")
	if err != nil {
		return "", err
	}
	if err := c.send(ctx, raw, msg.ThreadID); err != nil {
		return "", err
	}
	return DisplayName(toRaw), nil
}

func (c *Client) send(ctx context.Context, rawMIME []byte, threadID string) error {
	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString(rawMIME),
	}
	if threadID != "" {
		payload["threadId"] = threadID
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/messages/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gmail send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *Client) metadata(ctx context.Context, id string) (Email, error) {
	var msg message
	u := fmt.Sprintf("%s/messages/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject&metadataHeaders=Date", apiBase, id)
	if err := c.getJSON(ctx, u, &msg); err != nil {
		return Email{}, err
	}
	return emailFromHeaders(msg), nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gmail get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gmail get: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// wire shapes

type message struct {
	ID       string  `json:"id"`
	ThreadID string  `json:"threadId"`
	Payload  payload `json:"payload"`
}

type payload struct {
	MimeType string    `json:"mimeType"`
	Headers  []header  `json:"headers"`
	Body     *partBody `json:"body"`
	Parts    []payload `json:"parts"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	Data string `json:"data"`
}

func headerMap(hs []header) map[string]string {
	m := make(map[string]string, len(hs))
	for _, h := range hs {
		m[h.Name] = h.Value
	}
	return m
}

func emailFromHeaders(msg message) Email {
	h := headerMap(msg.Payload.Headers)
	from := h["From"]
	subject := h["Subject"]
	if subject == "" {
		subject = "(件名なし)"
	}
	return Email{
		ID:       msg.ID,
		ThreadID: msg.ThreadID,
		FromName: DisplayName(from),
		FromAddr: from,
		Subject:  subject,
		Date:     h["Date"],
	}
}

// plainBody digs the first text/plain part out of a message payload.
func plainBody(p payload) string {
	if p.Body != nil && p.Body.Data != "" {
		if b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(p.Body.Data, "=")); err == nil {
			return string(b)
		}
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" {
			if body := plainBody(part); body != "" {
				return body
			}
		}
	}
	for _, part := range p.Parts {
		if body := plainBody(part); body != "" {
			return body
		}
	}
	return ""
}

var (
	reNameBeforeAngle = regexp.MustCompile(`(.+?)\s*<`)
	reAngleAddr       = regexp.MustCompile(`<([^>]+)>`)
)

// ExtractAddress pulls the bare address out of a From-style header
// ('"名前" <a@example.com>' -> 'a@example.com').
func ExtractAddress(s string) string {
	if s == "" {
		return ""
	}
	if m := reAngleAddr.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if strings.Contains(s, "@") {
		return strings.TrimSpace(s)
	}
	return ""
}

// DisplayName extracts a speakable sender name from a From header.
func DisplayName(s string) string {
	if s == "" {
		return "不明"
	}
	if m := reNameBeforeAngle.FindStringSubmatch(s); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"`)
	}
	if at := strings.Index(s, "@"); at > 0 {
		return s[:at]
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "...(以下省略)"
}

// buildMIME assembles the raw RFC 822 message, multipart when a file is
// attached.
func buildMIME(to, subject, body string, extraHeaders map[string]string, attachmentPath string) ([]byte, error) {
	var b bytes.Buffer

	writeHeader := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}

	writeHeader("To", to)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", subject))
	for k, v := range extraHeaders {
		writeHeader(k, v)
	}
	writeHeader("MIME-Version", "1.0")

	if attachmentPath == "" {
		writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
		b.WriteString("\r\n")
		b.WriteString(body)
		return b.Bytes(), nil
	}

	data, err := os.ReadFile(attachmentPath)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	const boundary = "necklace-boundary-1"
	writeHeader("Content-Type", fmt.Sprintf(`multipart/mixed; boundary="%s"`, boundary))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	name := filepath.Base(attachmentPath)
	fmt.Fprintf(&b, "Content-Type: image/jpeg; name=\"%s\"\r\n", name)
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=\"%s\"\r\n", name)
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes(), nil
}
