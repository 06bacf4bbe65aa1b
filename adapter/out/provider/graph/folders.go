package graph

import (
	"context"
	"strings"

	"mailmirror/core/domain"
	"mailmirror/pkg/apperr"
)

type graphFolder struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	WellKnownName string `json:"wellKnownName,omitempty"`
}

// ListFolders lists /me/mailFolders, following @odata.nextLink until
// exhausted (§4.7.2). Each descriptor carries its Graph id in ProviderID;
// the orchestrator's discovery records those ids on the account.
func (a *Adapter) ListFolders(ctx context.Context, account *domain.MailAccount) ([]domain.FolderDescriptor, error) {
	accessToken, err := a.vault.Decrypt(account.EncryptedAccessToken)
	if err != nil {
		return nil, apperr.CredentialRejected(account.Email, err)
	}

	var folders []domain.FolderDescriptor
	nextLink := graphBaseURL + "/me/mailFolders?$top=100&$select=id,displayName"

	for nextLink != "" {
		var resp struct {
			Value    []graphFolder `json:"value"`
			NextLink string        `json:"@odata.nextLink"`
		}
		if err := a.doGet(ctx, accessToken, nextLink, &resp); err != nil {
			return nil, err
		}

		for _, f := range resp.Value {
			folders = append(folders, domain.FolderDescriptor{
				Path:       f.DisplayName,
				Delimiter:  "/",
				ProviderID: f.ID,
				SpecialUse: specialUseFor(f.DisplayName),
			})
		}

		nextLink = resp.NextLink
	}

	return folders, nil
}

// specialUseFor maps Graph's canonical display names to an RFC-6154-
// shaped hint so the normalizer's step 3 (§4.3) can recognize them.
func specialUseFor(displayName string) string {
	switch strings.ToLower(strings.TrimSpace(displayName)) {
	case "sentitems", "sent items":
		return `\Sent`
	case "deleteditems", "deleted items":
		return `\Trash`
	case "junkemail", "junk email":
		return `\Junk`
	case "drafts":
		return `\Drafts`
	case "archive":
		return `\Archive`
	case "inbox":
		return `\Inbox`
	default:
		return ""
	}
}

// HighestWatermark is informational only for Graph: delta/timestamp
// filtering does the real work, so this returns the account's last sync
// instant as a timestamp watermark (§4.2 metadata note).
func (a *Adapter) HighestWatermark(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor) (domain.Watermark, error) {
	return domain.Watermark{IsUID: false, Timestamp: account.LastSyncedAt.Unix()}, nil
}
