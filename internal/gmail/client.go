package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v5"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
	MaxAttachmentSize = 25 * 1024 * 1024

	// maxAPIAttempts bounds the retries of a transient API failure
	// before it becomes fatal.
	maxAPIAttempts = 4
)

// Client wraps the Gmail Users service with the three read operations the
// extraction pipeline needs: paginated search, message detail fetch, and
// attachment fetch. All operations are read-only against the remote
// service. Transient failures (quota, 5xx) are retried with exponential
// backoff up to maxAPIAttempts; authorization refresh happens one layer
// down, in the OAuth transport of the HTTP client.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client on top of an authenticated HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client) (*Client, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// NewClientForService wraps an existing service. Used by tests that point
// the service at a local HTTP server.
func NewClientForService(svc *gmail.Service) *Client {
	return &Client{svc: svc.Users}
}

// ForeachMessage iterates over all message summaries matching the query,
// fetching pages until a response carries no continuation token. Each
// summary carries only Id and ThreadId. The sequence is lazy and
// per-page: a second call re-issues from page one. Iteration stops early
// if fn returns an error.
func (c *Client) ForeachMessage(ctx context.Context, q string, fn func(*gmail.Message) error) error {
	pageToken := ""
	for {
		req := c.svc.Messages.List("me").Q(q).Context(ctx)
		if pageToken != "" {
			req.PageToken(pageToken)
		}
		res, err := retryTransient(ctx, func() (*gmail.ListMessagesResponse, error) {
			return req.Do()
		})
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range res.Messages {
			if err := fn(m); err != nil {
				return err
			}
		}
		if res.NextPageToken == "" {
			return nil
		}
		pageToken = res.NextPageToken
	}
}

// GetMessage retrieves a full Gmail message. A message deleted between
// listing and fetching surfaces as a *NotFoundError.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, err := retryTransient(ctx, func() (*gmail.Message, error) {
		return c.svc.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, &NotFoundError{MessageID: messageID}
		}
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// GetAttachment retrieves the decoded content of an attachment.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	attachment, err := retryTransient(ctx, func() (*gmail.MessagePartBody, error) {
		return c.svc.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}

	if attachment.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", attachment.Size, MaxAttachmentSize)
	}

	return decodeBody(attachment.Data)
}

// decodeBody decodes the base64url payload the API returns (RFC 4648
// base64url encoding), falling back to standard base64.
func decodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode attachment data: %w", err)
		}
	}
	return decoded, nil
}

// retryTransient runs op, retrying quota and server errors with
// exponential backoff. Any other error is surfaced immediately.
func retryTransient[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAPIAttempts),
	)
}
