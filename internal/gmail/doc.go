// Package gmail provides a thin, typed façade over the Gmail API for the
// extraction pipeline.
//
// The Client exposes exactly three remote operations:
//   - ForeachMessage: paginated search yielding message summaries
//   - GetMessage: full message detail by id
//   - GetAttachment: base64url attachment payload, decoded to raw bytes
//
// Decode turns a full message into structured metadata (subject, sent
// time, sender name and address) plus the attachment-bearing parts of
// its MIME tree.
//
// Error contract: a vanished message is a *NotFoundError (recoverable
// skip); quota and server errors are retried with bounded backoff before
// surfacing; a malformed Date header is an *UnparsableDateError scoped to
// that one message.
package gmail
