// Package gmail adapts the Gmail REST API to the mailbox operations jobs need.
package gmail

import (
	"context"
	"fmt"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

const (
	me         = "me"
	inboxLabel = "INBOX"
	// BatchLimit is the most ids one batchModify call accepts.
	BatchLimit = 1000
	pageSize   = 500
)

// Client runs searches and label changes on one authenticated mailbox.
type Client struct {
	svc *gmailapi.Service
}

// NewClient wraps an authenticated Gmail service.
func NewClient(svc *gmailapi.Service) *Client {
	return &Client{svc: svc}
}

// Search returns the ids of one page of messages matching query, plus the
// next page token.
func (c *Client) Search(ctx context.Context, query, pageToken string) ([]string, string, error) {
	call := c.svc.Users.Messages.List(me).Q(query).MaxResults(pageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// ApplyAction applies action to every id, in batches of BatchLimit.
func (c *Client) ApplyAction(ctx context.Context, ids []string, action models.JobAction) error {
	req, err := modifyRequest(action)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += BatchLimit {
		end := start + BatchLimit
		if end > len(ids) {
			end = len(ids)
		}
		batch := *req
		batch.Ids = ids[start:end]
		if err := c.svc.Users.Messages.BatchModify(me, &batch).Context(ctx).Do(); err != nil {
			return fmt.Errorf("modify messages %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Profile returns the address of the authenticated mailbox.
func (c *Client) Profile(ctx context.Context) (string, error) {
	profile, err := c.svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return profile.EmailAddress, nil
}

func modifyRequest(action models.JobAction) (*gmailapi.BatchModifyMessagesRequest, error) {
	switch action {
	case models.JobActionArchive:
		return &gmailapi.BatchModifyMessagesRequest{RemoveLabelIds: []string{inboxLabel}}, nil
	default:
		return nil, fmt.Errorf("unsupported job action %q", action)
	}
}
