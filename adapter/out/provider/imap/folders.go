package imap

import (
	"context"

	"github.com/emersion/go-imap/v2"

	"mailmirror/core/domain"
	"mailmirror/pkg/apperr"
)

// ListFolders returns every folder the account exposes as an unfiltered,
// unsorted descriptor list (§4.2 list folders). The normalizer and
// orchestrator apply exclusion and priority ordering.
func (a *Adapter) ListFolders(ctx context.Context, account *domain.MailAccount) ([]domain.FolderDescriptor, error) {
	client, err := a.dial(ctx, account)
	if err != nil {
		return nil, err
	}
	defer client.Logout().Wait()
	defer client.Close()

	mailboxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, apperr.ProtocolError("list mailboxes", err)
	}

	folders := make([]domain.FolderDescriptor, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		desc := imapFolderDescriptor(mbox)
		if status, err := client.Status(mbox.Mailbox, &imap.StatusOptions{UIDValidity: true}).Wait(); err == nil && status.UIDValidity != nil {
			desc.UIDValidity = *status.UIDValidity
		}
		folders = append(folders, desc)
	}
	return folders, nil
}

// HighestWatermark issues STATUS (UIDNEXT) and returns UIDNEXT-1, or 0
// for an empty folder (§4.2 highestUid).
func (a *Adapter) HighestWatermark(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor) (domain.Watermark, error) {
	client, err := a.dial(ctx, account)
	if err != nil {
		return domain.Watermark{}, err
	}
	defer client.Logout().Wait()
	defer client.Close()

	status, err := client.Status(folder.Path, &imap.StatusOptions{UIDNext: true}).Wait()
	if err != nil {
		return domain.Watermark{}, apperr.ProtocolError("status uidnext", err)
	}

	var highest int64
	if status.UIDNext != nil && uint32(*status.UIDNext) > 1 {
		highest = int64(*status.UIDNext) - 1
	}
	return domain.Watermark{IsUID: true, UID: highest}, nil
}
