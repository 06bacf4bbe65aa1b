// Package graph implements out.ProviderAdapter and out.TokenRefresher
// over the Microsoft Graph REST API, grounded on
// adapter/out/provider/worker_outlook_adapter.go's oauth2/microsoft
// config and doGet HTTP helper, reworked from Gmail-style send/label/
// draft operations into the read-only discovery + delta sync shape
// §4.2/§4.7.4 require.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Config holds the Azure AD app registration this adapter authenticates
// with. TenantID defaults to "common" for personal + work/school accounts.
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURL  string
}

// Adapter implements out.ProviderAdapter (read path) and
// out.TokenRefresher (rotation) for Graph/Outlook accounts.
type Adapter struct {
	vault  out.CredentialVault
	oauth  *oauth2.Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func New(vault out.CredentialVault, cfg Config) *Adapter {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	return &Adapter{
		vault: vault,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://graph.microsoft.com/Mail.Read",
				"https://graph.microsoft.com/User.Read",
				"offline_access",
			},
			Endpoint: microsoft.AzureADEndpoint(tenant),
		},
		client: http.DefaultClient,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "microsoft-graph",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.ConsecutiveFailures > 5 ||
					(counts.Requests >= 10 && failureRatio >= 0.6)
			},
		}),
	}
}

var (
	_ out.ProviderAdapter = (*Adapter)(nil)
	_ out.TokenRefresher  = (*Adapter)(nil)
)

// AuthCodeURL returns the OAuth consent-screen URL for onboarding.
func (a *Adapter) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for the initial token pair.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) (accessToken, refreshToken string, expiresIn int, err error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return "", "", 0, apperr.CredentialRejected("", err)
	}
	return tokenTriple(token)
}

// Refresh implements out.TokenRefresher: refreshMicrosoftToken (§4.1).
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, expiresIn int, err error) {
	src := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return "", "", 0, fmt.Errorf("refresh microsoft token: %w", err)
	}
	return tokenTriple(token)
}

func tokenTriple(token *oauth2.Token) (accessToken, refreshToken string, expiresIn int, err error) {
	expiresIn = int(time.Until(token.Expiry).Seconds())
	return token.AccessToken, token.RefreshToken, expiresIn, nil
}

// TestConnection validates the access token by calling /me (§4.2
// testConnection, Graph flavor).
func (a *Adapter) TestConnection(ctx context.Context, account *domain.MailAccount) error {
	accessToken, err := a.vault.Decrypt(account.EncryptedAccessToken)
	if err != nil {
		return apperr.CredentialRejected(account.Email, err)
	}
	var who struct {
		Mail string `json:"mail"`
	}
	return a.doGet(ctx, accessToken, graphBaseURL+"/me?$select=mail", &who)
}

func (a *Adapter) doGet(ctx context.Context, accessToken, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.execute(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return wrapHTTPError(resp.StatusCode, string(body))
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// execute runs req through the circuit breaker so a failing Graph
// tenant trips open after repeated failures instead of every sync job
// piling onto a server that is already down.
func (a *Adapter) execute(req *http.Request) (*http.Response, error) {
	result, err := a.cb.Execute(func() (interface{}, error) {
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, apperr.ProviderUnavailable("microsoft-graph", err)
	}
	return result.(*http.Response), nil
}

// errDeltaResyncRequired is Graph's 410 Gone response to a stale or
// expired @odata.deltaLink: the caller must drop the cached link and
// restart the folder's delta query from scratch.
var errDeltaResyncRequired = errors.New("graph: delta link expired, resyncRequired")

// wrapHTTPError translates Graph HTTP statuses into the normalized error
// taxonomy (§7): 401/403 are credential failures, not retried; 410 from
// a delta query is resyncRequired; 429/5xx are transient and retried by
// the job framework.
func wrapHTTPError(statusCode int, body string) error {
	switch statusCode {
	case 401, 403:
		return apperr.CredentialRejected("", fmt.Errorf("graph http %d: %s", statusCode, body))
	case 410:
		return errDeltaResyncRequired
	default:
		return apperr.ProviderUnavailable("microsoft-graph", fmt.Errorf("http %d: %s", statusCode, body))
	}
}
