package gmail

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

// Placeholder values for headers a message may lack. A missing Date
// header falls through to the placeholder and then fails date parsing,
// which makes the message a decode failure by construction.
const (
	NoSubject = "(no subject)"
	NoDate    = "(no date)"
	NoSender  = "(no sender)"
)

// ParsedMessage is the structured metadata extracted from one message.
type ParsedMessage struct {
	MessageID     string
	Subject       string
	SentAt        time.Time
	SenderName    string
	SenderAddress string
}

// AttachmentPart locates one attachment within a message's MIME tree:
// a part carrying both a filename and an out-of-line body identifier.
type AttachmentPart struct {
	PartID       string
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// UnparsableDateError indicates a message whose Date header cannot be
// parsed under the RFC 5322 date grammar. The message's attachments are
// skipped; the run continues.
type UnparsableDateError struct {
	MessageID string
	Header    string
	Err       error
}

func (e *UnparsableDateError) Error() string {
	return fmt.Sprintf("message %s has unparsable date header %q: %v", e.MessageID, e.Header, e.Err)
}

func (e *UnparsableDateError) Unwrap() error { return e.Err }

// Decode extracts structured metadata from a full message and locates its
// attachment-bearing parts. Inline bodies without an attachment id are
// not attachments even if they declare a filename; plain text and HTML
// bodies are not surfaced at all.
func Decode(msg *gmail.Message) (*ParsedMessage, []*AttachmentPart, error) {
	subject := headerValue(msg, "Subject", NoSubject)
	date := headerValue(msg, "Date", NoDate)
	sender := headerValue(msg, "From", NoSender)

	sentAt, err := mail.ParseDate(date)
	if err != nil {
		return nil, nil, &UnparsableDateError{MessageID: msg.Id, Header: date, Err: err}
	}

	name, address := parseSender(sender)

	parsed := &ParsedMessage{
		MessageID:     msg.Id,
		Subject:       subject,
		SentAt:        sentAt,
		SenderName:    name,
		SenderAddress: address,
	}

	var parts []*AttachmentPart
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			parts = append(parts, &AttachmentPart{
				PartID:       part.PartId,
				AttachmentID: part.Body.AttachmentId,
				Filename:     part.Filename,
				MimeType:     part.MimeType,
				Size:         part.Body.Size,
			})
		}
	})

	return parsed, parts, nil
}

// headerValue returns the first occurrence of the named header,
// case-insensitively, or def when absent.
func headerValue(msg *gmail.Message, name, def string) string {
	if msg.Payload == nil {
		return def
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return def
}

// parseSender splits a From header under the `display-name <local@domain>`
// grammar. When no angle-bracket address is present the whole value is
// the address and the display name is empty.
func parseSender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", from
	}
	return addr.Name, addr.Address
}

// walkParts recursively walks a message's MIME tree. A message may be
// single-part (the payload itself) or multi-part (a tree of sub-parts).
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}
