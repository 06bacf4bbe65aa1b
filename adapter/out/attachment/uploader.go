// Package attachment implements out.AttachmentUploader: the external
// blob sink named in §6 as a single uploadBlob(bytes, contentType,
// filename) -> url interface. Grounded on pkg/httputil/worker_http_client.go's
// tuned-transport http.Client construction, narrowed from that file's
// per-provider (Gmail/Outlook/OpenAI/Mongo) config table down to the one
// profile this sink needs.
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

// Config names the upload endpoint this sink POSTs a multipart blob to.
// The endpoint is expected to store the bytes and return the resulting
// URL as a bare text/plain response body.
type Config struct {
	Endpoint string
	APIKey   string
}

// Uploader implements out.AttachmentUploader over a single HTTP
// endpoint, reusing a connection-pooled client across every call.
type Uploader struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Uploader {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &Uploader{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: 60 * time.Second},
	}
}

var _ out.AttachmentUploader = (*Uploader)(nil)

// Upload implements out.AttachmentUploader. The sync engine never
// blocks on this call directly — the orchestrator hands attachments to
// the attachment-upload queue (§4.4), and this is invoked from that
// job's handler instead.
func (u *Uploader) Upload(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write attachment bytes: %w", err)
	}
	if err := mw.WriteField("contentType", contentType); err != nil {
		return "", fmt.Errorf("write content type field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.APIKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", apperr.ProviderUnavailable("attachment-sink", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", apperr.ProviderUnavailable("attachment-sink", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}
	return string(bytes.TrimSpace(respBody)), nil
}
