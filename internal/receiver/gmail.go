package receiver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/gmail/v1"
)

const user = "me"

// GmailReceiver reads and relabels messages through the Gmail REST API.
type GmailReceiver struct {
	srv    *gmail.Service
	logger *slog.Logger
}

// NewGmail creates a receiver on top of an authorized Gmail service.
func NewGmail(srv *gmail.Service, logger *slog.Logger) *GmailReceiver {
	return &GmailReceiver{srv: srv, logger: logger}
}

func (r *GmailReceiver) Labels(ctx context.Context) ([]Label, error) {
	resp, err := r.srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail labels list: %w", err)
	}
	labels := make([]Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

func (r *GmailReceiver) List(ctx context.Context, labelID string) ([]Message, error) {
	var msgs []Message
	pageToken := ""
	for page := 1; ; page++ {
		call := r.srv.Users.Messages.List(user).LabelIds(labelID).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gmail messages list (page %d): %w", page, err)
		}
		for _, m := range resp.Messages {
			msgs = append(msgs, Message{ID: m.Id})
		}
		r.logger.Debug("listed message page", "label_id", labelID, "page", page, "count", len(resp.Messages))

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return msgs, nil
}

func (r *GmailReceiver) FetchRaw(ctx context.Context, id string) (Raw, error) {
	msg, err := r.srv.Users.Messages.Get(user, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return Raw{}, fmt.Errorf("gmail messages get %s: %w", id, err)
	}
	content, err := decodeRaw(msg.Raw)
	if err != nil {
		return Raw{}, fmt.Errorf("decode raw message %s: %w", id, err)
	}
	return Raw{Content: content, Snippet: msg.Snippet}, nil
}

func (r *GmailReceiver) SetLabels(ctx context.Context, id, add, remove string) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{add},
		RemoveLabelIds: []string{remove},
	}
	if _, err := r.srv.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail messages modify %s: %w", id, err)
	}
	return nil
}

func (r *GmailReceiver) Close() error {
	return nil
}

// decodeRaw accepts base64url with or without padding.
func decodeRaw(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}
