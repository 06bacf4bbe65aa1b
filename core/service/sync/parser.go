package sync

import (
	"bytes"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	emmail "github.com/emersion/go-message/mail"
	"github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"

	"mailmirror/core/domain"
	"mailmirror/core/port/out"
	"mailmirror/pkg/apperr"
)

const maxPartSize = 25 << 20 // 25MiB per MIME part, matches the pack's body-parsing guard

var htmlStripPolicy = bluemonday.StrictPolicy()

// Parser converts a RawMessage into the canonical Message record, per
// §4.4. It never blocks on attachment upload — parsed attachments are
// handed to the caller, which enqueues them asynchronously.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

// Parse dispatches on whether the raw message is IMAP (RFC 5322 bytes)
// or Graph (JSON), returning a skip-worthy ParseError on malformed input
// — per-message isolation (§7): the caller must skip and continue, not
// abort the chunk.
func (p *Parser) Parse(raw out.RawMessage, folder string) (*domain.Message, error) {
	if raw.RawRFC822 != nil {
		return p.parseRFC822(raw, folder)
	}
	if raw.GraphJSON != nil {
		return p.parseGraphJSON(raw, folder)
	}
	return nil, apperr.ParseError("raw message has neither RFC822 bytes nor Graph JSON", nil)
}

func (p *Parser) parseRFC822(raw out.RawMessage, folder string) (*domain.Message, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw.RawRFC822))
	if err != nil {
		// Malformed RFC 5322: a best-effort record is returned alongside
		// the ParseError; the orchestrator skips the message on the error.
		m := &domain.Message{
			UID:        raw.UID,
			Folder:     folder,
			Body:       string(raw.RawRFC822),
			Subject:    "(No Subject)",
			IsRead:     raw.Seen,
			ReceivedAt: time.Now(),
			FetchedAt:  time.Now(),
			ThreadKey:  raw.ThreadHint,
		}
		return m, apperr.ParseError("malformed RFC 5322 body", err)
	}

	header := emmail.Header{Header: entity.Header}

	m := &domain.Message{
		UID:               raw.UID,
		Folder:            folder,
		ProviderMessageID: firstNonEmpty(entity.Header.Get("Message-Id")),
		From:              formatAddress(header, "From"),
		To:                addressList(header, "To"),
		Subject:           subjectOrDefault(entity.Header.Get("Subject")),
		IsRead:            raw.Seen,
		ReceivedAt:        parseDateOrNow(entity.Header.Get("Date")),
		FetchedAt:         time.Now(),
		ThreadKey:         threadKeyFromHeaders(entity.Header.Get("References"), entity.Header.Get("In-Reply-To"), raw.ThreadHint),
	}

	var body bodyAccumulator
	if mr := entity.MultipartReader(); mr != nil {
		walkMultipart(mr, &body, m)
	} else {
		readSinglePart(entity, &body)
	}

	m.Body = body.plainOrStrippedHTML()
	m.HTMLBody = body.html
	m.Attachments = body.attachments
	return m, nil
}

// graphMessage is the subset of Graph's message JSON shape this parser
// needs.
type graphMessage struct {
	ID                 string `json:"id"`
	InternetMessageID  string `json:"internetMessageId"`
	ConversationID     string `json:"conversationId"`
	Subject            string `json:"subject"`
	IsRead             bool   `json:"isRead"`
	ReceivedDateTime   string `json:"receivedDateTime"`
	From               struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	Body struct {
		ContentType string `json:"contentType"` // "text" or "html"
		Content     string `json:"content"`
	} `json:"body"`
	HasAttachments bool `json:"hasAttachments"`
}

func (p *Parser) parseGraphJSON(raw out.RawMessage, folder string) (*domain.Message, error) {
	var gm graphMessage
	if err := json.Unmarshal(raw.GraphJSON, &gm); err != nil {
		return nil, apperr.ParseError("malformed Graph JSON", err)
	}

	m := &domain.Message{
		UID:               raw.UID,
		Folder:            folder,
		ProviderMessageID: firstNonEmpty(gm.InternetMessageID, gm.ID),
		From:              formatGraphAddress(gm.From.EmailAddress.Name, gm.From.EmailAddress.Address),
		Subject:           subjectOrDefault(gm.Subject),
		IsRead:            gm.IsRead,
		ReceivedAt:        parseRFC3339OrNow(gm.ReceivedDateTime),
		FetchedAt:         time.Now(),
		ThreadKey:         firstNonEmpty(gm.ConversationID, raw.ThreadHint),
	}
	for _, r := range gm.ToRecipients {
		addr := formatGraphAddress(r.EmailAddress.Name, r.EmailAddress.Address)
		if addr != "" {
			m.To = append(m.To, addr)
		}
	}

	if strings.EqualFold(gm.Body.ContentType, "html") {
		m.HTMLBody = gm.Body.Content
		m.Body = stripHTML(gm.Body.Content)
	} else {
		m.Body = gm.Body.Content
	}
	return m, nil
}

type bodyAccumulator struct {
	plain       string
	html        string
	attachments []domain.ParsedAttachment
}

func (b *bodyAccumulator) plainOrStrippedHTML() string {
	if b.plain != "" {
		return b.plain
	}
	if b.html != "" {
		return stripHTML(b.html)
	}
	return ""
}

func walkMultipart(mr gomessage.MultipartReader, body *bodyAccumulator, m *domain.Message) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return
		}

		contentType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-ID"), "<>")

		if disposition == "attachment" || (contentID != "" && strings.HasPrefix(contentType, "image/")) {
			data, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
			filename := dispParams["filename"]
			if filename == "" {
				filename = "attachment"
			}
			body.attachments = append(body.attachments, domain.ParsedAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(data)),
				ContentID:   contentID,
				Bytes:       data,
			})
			continue
		}

		if strings.HasPrefix(contentType, "multipart/") {
			if nested := part.MultipartReader(); nested != nil {
				walkMultipart(nested, body, m)
			}
			continue
		}

		data, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		switch contentType {
		case "text/plain":
			if body.plain == "" {
				body.plain = string(data)
			}
		case "text/html":
			if body.html == "" {
				body.html = string(data)
			}
		}
	}
}

func readSinglePart(entity *gomessage.Entity, body *bodyAccumulator) {
	contentType, _, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	data, _ := io.ReadAll(io.LimitReader(entity.Body, maxPartSize))
	if contentType == "text/html" {
		body.html = string(data)
	} else {
		body.plain = string(data)
	}
}

func stripHTML(html string) string {
	return collapseWhitespace(htmlStripPolicy.Sanitize(html))
}

func subjectOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(No Subject)"
	}
	return s
}

func formatAddress(h emmail.Header, field string) string {
	addrs, err := h.AddressList(field)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return formatGraphAddress(addrs[0].Name, addrs[0].Address)
}

func addressList(h emmail.Header, field string) []string {
	addrs, err := h.AddressList(field)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Address == "" {
			continue
		}
		out = append(out, formatGraphAddress(a.Name, a.Address))
	}
	return out
}

func formatGraphAddress(name, addr string) string {
	if addr == "" {
		return ""
	}
	if name != "" {
		return `"` + name + `" <` + addr + `>`
	}
	return addr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDateOrNow(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	return time.Now()
}

func parseRFC3339OrNow(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}

// threadKeyFromHeaders derives a best-effort thread grouping key: the
// first token of References, else In-Reply-To, else the provider hint.
// Read-only metadata, no UI — see SUPPLEMENTED FEATURES.
func threadKeyFromHeaders(references, inReplyTo, hint string) string {
	if references != "" {
		fields := strings.Fields(references)
		if len(fields) > 0 {
			return strings.Trim(fields[0], "<>")
		}
	}
	if inReplyTo != "" {
		return strings.Trim(inReplyTo, "<>")
	}
	return hint
}

