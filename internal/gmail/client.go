package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/teamail/teamail/internal/services"
)

const user = "me"

// metadataHeaders are the display headers requested on single-message fetches.
// Fetching a new header involves adding it here and parsing it at the caller.
var metadataHeaders = []string{"Subject", "From", "To", "Cc", "Date"}

// CredentialRefresher re-establishes an expired credential. pkg/auth's
// Authenticator implements it.
type CredentialRefresher interface {
	Refresh(ctx context.Context) error
}

// Client wraps the gmail.Service and provides the remote store surface the
// services depend on
type Client struct {
	Service   *gmailapi.Service
	refresher CredentialRefresher
}

var _ services.MailStore = (*Client)(nil)

// NewClient creates a new Gmail client
func NewClient(service *gmailapi.Service) *Client {
	return &Client{Service: service}
}

// SetCredentialRefresher enables the one-shot refresh-and-retry on 401
func (c *Client) SetCredentialRefresher(r CredentialRefresher) {
	c.refresher = r
}

// do runs one request, and on 401 refreshes the credential and retries the
// same request exactly once. A second 401 is reported as transient so callers
// do not loop on refresh.
func (c *Client) do(ctx context.Context, call func() error) error {
	err := call()
	if err == nil || !isHTTPStatus(err, http.StatusUnauthorized) || c.refresher == nil {
		return err
	}
	if rerr := c.refresher.Refresh(ctx); rerr != nil {
		return fmt.Errorf("could not refresh credentials: %w", rerr)
	}
	err = call()
	if isHTTPStatus(err, http.StatusUnauthorized) {
		return fmt.Errorf("%w: still unauthorized after credential refresh: %v", services.ErrNetworkUnavailable, err)
	}
	return err
}

func isHTTPStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

// classify maps remote failures onto the service error kinds
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", services.ErrUnauthorized, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", services.ErrLabelConflict, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", services.ErrNotFound, err)
	}
	return err
}

// ActiveAccountEmail returns the authenticated account's address
func (c *Client) ActiveAccountEmail(ctx context.Context) (string, error) {
	var profile *gmailapi.Profile
	err := c.do(ctx, func() error {
		var err error
		profile, err = c.Service.Users.GetProfile(user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("could not get profile: %w", classify(err))
	}
	if profile == nil || profile.EmailAddress == "" {
		return "", fmt.Errorf("%w: profile without email address", services.ErrInvalidFormat)
	}
	return profile.EmailAddress, nil
}

// ListThreads returns a page of thread summaries matching a query
func (c *Client) ListThreads(ctx context.Context, query string, maxResults int64, pageToken string) ([]*gmailapi.Thread, string, error) {
	call := c.Service.Users.Threads.List(user)
	if query != "" {
		call = call.Q(query)
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var res *gmailapi.ListThreadsResponse
	err := c.do(ctx, func() error {
		var err error
		res, err = call.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("could not list threads: %w", classify(err))
	}
	if res == nil {
		return nil, "", fmt.Errorf("%w: empty thread list response", services.ErrInvalidFormat)
	}
	return res.Threads, res.NextPageToken, nil
}

// FetchThreadMembers returns the thread's current member messages with ids
// and label ids only
func (c *Client) FetchThreadMembers(ctx context.Context, threadID string) ([]*gmailapi.Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("%w: threadID cannot be empty", services.ErrInvalidInput)
	}

	var thread *gmailapi.Thread
	err := c.do(ctx, func() error {
		var err error
		thread, err = c.Service.Users.Threads.Get(user, threadID).Format("minimal").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch thread %s: %w", threadID, classify(err))
	}
	if thread == nil {
		return nil, fmt.Errorf("%w: empty response for thread %s", services.ErrInvalidFormat, threadID)
	}
	for _, m := range thread.Messages {
		if m == nil || m.Id == "" {
			return nil, fmt.Errorf("%w: thread %s contains a message without id", services.ErrInvalidFormat, threadID)
		}
	}
	return thread.Messages, nil
}

// GetMessage fetches a single message with display metadata headers
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("%w: messageID cannot be empty", services.ErrInvalidInput)
	}

	var msg *gmailapi.Message
	err := c.do(ctx, func() error {
		var err error
		msg, err = c.Service.Users.Messages.Get(user, messageID).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not get message %s: %w", messageID, classify(err))
	}
	if msg == nil || msg.Id == "" {
		return nil, fmt.Errorf("%w: empty response for message %s", services.ErrInvalidFormat, messageID)
	}
	return msg, nil
}

// BatchModifyMessages applies a label delta to an explicit message id list.
// The remote call acknowledges without a body.
func (c *Client) BatchModifyMessages(ctx context.Context, messageIDs, addLabelIDs, removeLabelIDs []string) error {
	if len(messageIDs) == 0 {
		return fmt.Errorf("%w: no message IDs provided", services.ErrInvalidInput)
	}

	req := &gmailapi.BatchModifyMessagesRequest{
		Ids:            messageIDs,
		AddLabelIds:    addLabelIDs,
		RemoveLabelIds: removeLabelIDs,
	}
	err := c.do(ctx, func() error {
		return c.Service.Users.Messages.BatchModify(user, req).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("could not modify messages: %w", classify(err))
	}
	return nil
}

// ModifyThread applies a label delta to all current members of a thread
func (c *Client) ModifyThread(ctx context.Context, threadID string, addLabelIDs, removeLabelIDs []string) error {
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("%w: threadID cannot be empty", services.ErrInvalidInput)
	}

	req := &gmailapi.ModifyThreadRequest{
		AddLabelIds:    addLabelIDs,
		RemoveLabelIds: removeLabelIDs,
	}
	err := c.do(ctx, func() error {
		_, err := c.Service.Users.Threads.Modify(user, threadID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("could not modify thread %s: %w", threadID, classify(err))
	}
	return nil
}

// ListLabels returns all labels
func (c *Client) ListLabels(ctx context.Context) ([]*gmailapi.Label, error) {
	var res *gmailapi.ListLabelsResponse
	err := c.do(ctx, func() error {
		var err error
		res, err = c.Service.Users.Labels.List(user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not list labels: %w", classify(err))
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty label list response", services.ErrInvalidFormat)
	}
	return res.Labels, nil
}

// CreateLabel creates a new label. hidden labels are excluded from both the
// label list and the message list.
func (c *Client) CreateLabel(ctx context.Context, name string, hidden bool) (*gmailapi.Label, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: label name cannot be empty", services.ErrInvalidInput)
	}

	label := &gmailapi.Label{Name: name}
	if hidden {
		label.LabelListVisibility = "labelHide"
		label.MessageListVisibility = "hide"
	}

	var created *gmailapi.Label
	err := c.do(ctx, func() error {
		var err error
		created, err = c.Service.Users.Labels.Create(user, label).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not create label %q: %w", name, classify(err))
	}
	if created == nil || created.Id == "" || created.Name == "" {
		return nil, fmt.Errorf("%w: create label %q returned incomplete label", services.ErrInvalidFormat, name)
	}
	return created, nil
}
