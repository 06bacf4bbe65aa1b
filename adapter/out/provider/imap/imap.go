// Package imap implements out.ProviderAdapter over plain IMAP + TLS,
// grounded on _examples/guiyumin-maily/internal/mail/imap.go and
// _examples/takitani-miau/internal/imap/client.go's imapclient usage,
// reworked from a long-lived per-account client into the short-lived,
// dial-per-call shape §4.2 requires (a mailbox lock lasts one operation).
package imap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

const (
	connectTimeout    = 30 * time.Second
	reconnectAttempts = 3
	reconnectDelay    = 5 * time.Second
)

// Adapter implements out.ProviderAdapter for IMAP accounts.
type Adapter struct {
	vault    out.CredentialVault
	certsDir string
	rejectUnauthorized bool

	certPoolOnce sync.Once
	certPool     *x509.CertPool
	certPoolErr  error
}

func New(vault out.CredentialVault, certsDir string, rejectUnauthorized bool) *Adapter {
	return &Adapter{vault: vault, certsDir: certsDir, rejectUnauthorized: rejectUnauthorized}
}

var _ out.ProviderAdapter = (*Adapter)(nil)

// loadCertPool reads every *.crt file under certsDir once and caches the
// pool process-wide (§4.2): later calls never re-read the filesystem.
func (a *Adapter) loadCertPool() (*x509.CertPool, error) {
	a.certPoolOnce.Do(func() {
		if a.certsDir == "" {
			return
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		entries, err := os.ReadDir(a.certsDir)
		if err != nil {
			a.certPoolErr = fmt.Errorf("read certs dir: %w", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".crt") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(a.certsDir, e.Name()))
			if err != nil {
				a.certPoolErr = fmt.Errorf("read cert %s: %w", e.Name(), err)
				return
			}
			pool.AppendCertsFromPEM(data)
		}
		a.certPool = pool
	})
	return a.certPool, a.certPoolErr
}

func (a *Adapter) tlsConfig(host string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: !a.rejectUnauthorized,
	}
	if a.certsDir != "" {
		pool, err := a.loadCertPool()
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// dial connects and logs in, making up to reconnectAttempts connection
// attempts in total on connection failure (not on auth failure, which is
// never retried).
func (a *Adapter) dial(ctx context.Context, account *domain.MailAccount) (*imapclient.Client, error) {
	host := account.IMAPHost
	port := account.IMAPPort
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	tlsCfg, err := a.tlsConfig(host)
	if err != nil {
		return nil, apperr.ProtocolError("load CA bundle", err)
	}

	password, err := a.vault.Decrypt(account.EncryptedPassword)
	if err != nil {
		return nil, apperr.CredentialRejected(account.Email, err)
	}

	var client *imapclient.Client
	var dialErr error
	for attempt := 0; attempt < reconnectAttempts; attempt++ {
		done := make(chan struct{})
		go func() {
			client, dialErr = imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: tlsCfg})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(connectTimeout):
			dialErr = fmt.Errorf("connect timed out after %s", connectTimeout)
		}
		if dialErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
	if dialErr != nil {
		return nil, apperr.ProviderUnavailable("imap", fmt.Errorf("connect to %s: %w", addr, dialErr))
	}

	if err := client.Login(account.Email, password).Wait(); err != nil {
		client.Close()
		return nil, apperr.CredentialRejected(account.Email, err)
	}
	return client, nil
}

// TestConnection connects, logs in, and immediately logs out, without
// running any sync work (§4.2 testConnection).
func (a *Adapter) TestConnection(ctx context.Context, account *domain.MailAccount) error {
	client, err := a.dial(ctx, account)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Logout().Wait()
}

// imapFolderDescriptor converts a LIST response into the adapter-agnostic
// descriptor shape (§4.2).
func imapFolderDescriptor(mbox *imapclient.ListData) domain.FolderDescriptor {
	flags := make([]string, 0, len(mbox.Attrs))
	specialUse := ""
	for _, attr := range mbox.Attrs {
		s := string(attr)
		flags = append(flags, s)
		switch s {
		case `\Sent`, `\Drafts`, `\Trash`, `\Junk`, `\Archive`, `\Inbox`, `\Flagged`:
			specialUse = s
		}
	}
	delim := string(mbox.Delim)
	return domain.FolderDescriptor{
		Path:       mbox.Mailbox,
		Delimiter:  delim,
		Flags:      flags,
		SpecialUse: specialUse,
	}
}
