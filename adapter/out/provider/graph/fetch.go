package graph

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

const (
	graphPageSize = 50

	// graphSafetyCap bounds total messages retrieved per run (§4.7.4 step 2).
	graphSafetyCap = 500
)

// FetchSince implements §4.7.4: locate the folder by its cached id,
// resume its cached @odata.deltaLink if one exists (the delta-link
// caching supplement), page via @odata.nextLink, persist the new
// deltaLink once the page walk is exhausted, and bound total retrieval
// to graphSafetyCap messages per run. Each page's raw JSON objects are
// handed to yield unmodified; the orchestrator assigns synthetic UIDs.
func (a *Adapter) FetchSince(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor, from domain.Watermark, chunkSize int, yieldFn func(out.RawMessage) error) (domain.Watermark, error) {
	accessToken, err := a.vault.Decrypt(account.EncryptedAccessToken)
	if err != nil {
		return from, apperr.CredentialRejected(account.Email, err)
	}

	folderID := folder.ProviderID
	if folderID == "" {
		return from, apperr.ProtocolError("resolve graph folder id for "+folder.Path, nil)
	}

	if account.GraphDeltaLinks == nil {
		account.GraphDeltaLinks = map[string]string{}
	}

	nextLink := account.GraphDeltaLinks[folderID]
	if nextLink == "" {
		nextLink = a.initialDeltaURL(folderID, from)
	}

	retrieved := 0
	latest := from
	var deltaLink string
	for nextLink != "" && retrieved < graphSafetyCap {
		var page struct {
			Value     []json.RawMessage `json:"value"`
			NextLink  string            `json:"@odata.nextLink"`
			DeltaLink string            `json:"@odata.deltaLink"`
		}
		if err := a.doGet(ctx, accessToken, nextLink, &page); err != nil {
			if errors.Is(err, errDeltaResyncRequired) {
				// The cached link expired server-side: drop it and
				// restart this folder from a fresh timestamp-filtered
				// delta query (§9 delta-link caching fallback).
				delete(account.GraphDeltaLinks, folderID)
				return a.FetchSince(ctx, account, folder, from, chunkSize, yieldFn)
			}
			return latest, err
		}

		for _, raw := range page.Value {
			var meta struct {
				ReceivedDateTime string `json:"receivedDateTime"`
				ConversationID   string `json:"conversationId"`
			}
			_ = json.Unmarshal(raw, &meta)

			if err := yieldFn(out.RawMessage{
				UID:        -1,
				Seen:       true,
				GraphJSON:  raw,
				ThreadHint: meta.ConversationID,
			}); err != nil {
				return latest, err
			}

			if ts, err := time.Parse(time.RFC3339, meta.ReceivedDateTime); err == nil && ts.Unix() > latest.Timestamp {
				latest = domain.Watermark{IsUID: false, Timestamp: ts.Unix()}
			}
			retrieved++
			if retrieved >= graphSafetyCap {
				break
			}
		}

		if page.DeltaLink != "" {
			deltaLink = page.DeltaLink
		}
		nextLink = page.NextLink
	}

	if deltaLink != "" {
		account.GraphDeltaLinks[folderID] = deltaLink
	}

	if latest.Timestamp == 0 {
		latest = domain.Watermark{IsUID: false, Timestamp: time.Now().Unix()}
	}
	return latest, nil
}

// initialDeltaURL builds the first page of a folder's delta query: a
// timestamp filter seeded from the watermark (epoch if never synced).
// The final page of this walk carries the @odata.deltaLink FetchSince
// caches and resumes from on the next call.
func (a *Adapter) initialDeltaURL(folderID string, from domain.Watermark) string {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", graphPageSize))
	params.Set("$select", "id,internetMessageId,conversationId,subject,isRead,from,toRecipients,body,receivedDateTime")

	since := time.Unix(from.Timestamp, 0).UTC()
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.Format(time.RFC3339)))

	return fmt.Sprintf("%s/me/mailFolders/%s/messages/delta?%s", graphBaseURL, folderID, params.Encode())
}
