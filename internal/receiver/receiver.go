package receiver

import (
	"context"
	"fmt"
	"strings"
)

// Label is a mailbox tag used as a processed/unprocessed flag.
type Label struct {
	ID   string
	Name string
}

// Message references one message carrying a label.
type Message struct {
	ID string
}

// Raw is the full RFC 5322 content of a message plus its server preview.
type Raw struct {
	Content []byte
	Snippet string
}

// Receiver talks to a remote mailbox that supports labels.
type Receiver interface {
	// Labels returns every label defined in the account.
	Labels(ctx context.Context) ([]Label, error)

	// List returns all messages carrying labelID, across all result pages.
	List(ctx context.Context, labelID string) ([]Message, error)

	// FetchRaw returns the raw content of one message.
	FetchRaw(ctx context.Context, id string) (Raw, error)

	// SetLabels adds one label to and removes another from a message in a
	// single call.
	SetLabels(ctx context.Context, id, add, remove string) error

	// Close releases any resources held by the receiver.
	Close() error
}

// NotFoundError reports a label name that does not exist in the account.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("label %q not found: account has no labels", e.Name)
	}
	return fmt.Sprintf("label %q not found, labels: [%s]", e.Name, strings.Join(e.Available, ", "))
}

// LabelByName resolves name to a label using an exact match.
func LabelByName(ctx context.Context, r Receiver, name string) (Label, error) {
	labels, err := r.Labels(ctx)
	if err != nil {
		return Label{}, fmt.Errorf("list labels: %w", err)
	}

	names := make([]string, 0, len(labels))
	for _, l := range labels {
		if l.Name == name {
			return l, nil
		}
		names = append(names, l.Name)
	}
	return Label{}, &NotFoundError{Name: name, Available: names}
}

// ListLabeled resolves name and returns every message carrying that label.
func ListLabeled(ctx context.Context, r Receiver, name string) (Label, []Message, error) {
	label, err := LabelByName(ctx, r, name)
	if err != nil {
		return Label{}, nil, err
	}
	msgs, err := r.List(ctx, label.ID)
	if err != nil {
		return Label{}, nil, fmt.Errorf("list messages in %s: %w", name, err)
	}
	return label, msgs, nil
}
