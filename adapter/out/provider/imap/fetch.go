package imap

import (
	"context"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

// rawBodySection requests the full, unparsed RFC 5322 source.
var rawBodySection = &imap.FetchItemBodySection{}

// FetchSince implements §4.7.3 step 4: enumerate UIDs >= from.UID+1,
// sort descending (newest first), and fetch in chunkSize windows. The
// mailbox lock (SELECT) is released on every exit path via defer.
func (a *Adapter) FetchSince(ctx context.Context, account *domain.MailAccount, folder domain.FolderDescriptor, from domain.Watermark, chunkSize int, yieldFn func(out.RawMessage) error) (domain.Watermark, error) {
	client, err := a.dial(ctx, account)
	if err != nil {
		return from, err
	}
	defer client.Logout().Wait()
	defer client.Close()

	if _, err := client.Select(folder.Path, nil).Wait(); err != nil {
		return from, apperr.ProtocolError("select "+folder.Path, err)
	}

	startUID := uint32(from.UID) + 1
	uids, err := searchUIDsFromStart(client, startUID)
	if err != nil {
		return from, err
	}
	if len(uids) == 0 {
		return from, nil
	}

	// Newest first: partial progress under a crash surfaces the most
	// useful messages first (§4.7.3 tie-break rules).
	sort.Sort(sort.Reverse(uint32Slice(uids)))

	highest := from.UID
	for chunkStart := 0; chunkStart < len(uids); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(uids) {
			chunkEnd = len(uids)
		}
		chunk := uids[chunkStart:chunkEnd]

		msgs, err := fetchChunk(client, chunk)
		if err != nil {
			return domain.Watermark{IsUID: true, UID: highest}, apperr.ProtocolError("fetch chunk", err)
		}

		// Oldest-in-chunk first to persist (§4.7.3 step 4).
		for i := len(msgs) - 1; i >= 0; i-- {
			m := msgs[i]
			if err := yieldFn(m); err != nil {
				return domain.Watermark{IsUID: true, UID: highest}, err
			}
			if m.UID > highest {
				highest = m.UID
			}
		}
	}

	return domain.Watermark{IsUID: true, UID: highest}, nil
}

// searchUIDsFromStart returns every UID >= start actually present,
// handling sparse UID spaces in folders like Trash/Spam where many UIDs
// have been expunged (§4.2 searchUidsFromStart).
func searchUIDsFromStart(client *imapclient.Client, start uint32) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(start), Stop: 0}}},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, apperr.ProtocolError("uid search", err)
	}

	all := searchData.AllUIDs()
	uids := make([]uint32, len(all))
	for i, u := range all {
		uids[i] = uint32(u)
	}
	return uids, nil
}

// fetchChunk retrieves the raw RFC 5322 source and \Seen flag for one
// chunk of UIDs (§4.2 fetchRange).
func fetchChunk(client *imapclient.Client, uids []uint32) ([]out.RawMessage, error) {
	uidSet := imap.UIDSet{}
	for _, u := range uids {
		uidSet.AddNum(imap.UID(u))
	}

	fetchOptions := &imap.FetchOptions{
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{rawBodySection},
	}

	msgs, err := client.Fetch(uidSet, fetchOptions).Collect()
	if err != nil {
		return nil, err
	}

	result := make([]out.RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		seen := false
		for _, f := range msg.Flags {
			if f == imap.FlagSeen {
				seen = true
				break
			}
		}
		result = append(result, out.RawMessage{
			UID:       int64(msg.UID),
			Seen:      seen,
			RawRFC822: msg.FindBodySection(rawBodySection),
		})
	}
	return result, nil
}

type uint32Slice []uint32

func (s uint32Slice) Len() int           { return len(s) }
func (s uint32Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s uint32Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
