package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tracyhatemice/labelhook/internal/message"
	"github.com/tracyhatemice/labelhook/internal/receiver"
)

// Notifier delivers decoded emails and plain error messages.
type Notifier interface {
	Notify(ctx context.Context, emails []message.Email) error
	Send(ctx context.Context, content string) error
}

// Options names the two labels that form the processed flag and the optional
// message posted when a pass fails.
type Options struct {
	NewLabel     string
	OldLabel     string
	ErrorMessage string
}

// Forwarder moves labeled emails from a mailbox to a webhook.
type Forwarder struct {
	opts     Options
	receiver receiver.Receiver
	notifier Notifier
	logger   *slog.Logger
}

// New creates a Forwarder.
func New(opts Options, recv receiver.Receiver, notifier Notifier, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		opts:     opts,
		receiver: recv,
		notifier: notifier,
		logger:   logger,
	}
}

// Run performs one pass when interval is zero and returns its error.
// Otherwise it runs a pass immediately and then on every tick until ctx is
// cancelled, logging failed passes.
func (f *Forwarder) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return f.RunOnce(ctx)
	}

	f.logger.Info("starting forwarder",
		"new_label", f.opts.NewLabel,
		"old_label", f.opts.OldLabel,
		"interval", interval,
	)

	f.pass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forwarder stopped")
			return nil
		case <-ticker.C:
			f.pass(ctx)
		}
	}
}

func (f *Forwarder) pass(ctx context.Context) {
	if err := f.RunOnce(ctx); err != nil {
		f.logger.Error("pass failed", "error", err)
	}
}

// RunOnce fetches every message carrying the new label, delivers it and
// moves it to the old label. Once messages have been listed they are
// relabeled on every exit path, including failed delivery.
func (f *Forwarder) RunOnce(ctx context.Context) (err error) {
	logger := f.logger.With("run_id", uuid.NewString())

	newLabel, msgs, err := receiver.ListLabeled(ctx, f.receiver, f.opts.NewLabel)
	if err != nil {
		return fmt.Errorf("fetch labeled: %w", err)
	}
	oldLabel, err := receiver.LabelByName(ctx, f.receiver, f.opts.OldLabel)
	if err != nil {
		return fmt.Errorf("fetch labeled: %w", err)
	}

	if len(msgs) == 0 {
		logger.Debug("no labeled emails", "label", newLabel.Name)
		return nil
	}
	logger.Info(fmt.Sprintf("found %d labeled email(s)", len(msgs)), "label", newLabel.Name)

	defer func() {
		if rerr := f.relabel(context.WithoutCancel(ctx), logger, msgs, oldLabel, newLabel); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	if err := f.deliver(ctx, msgs); err != nil {
		logger.Error("########## ERROR OCCURRED ##########", "error", err)
		if f.opts.ErrorMessage != "" {
			if nerr := f.notifier.Send(ctx, f.opts.ErrorMessage); nerr != nil {
				err = errors.Join(err, fmt.Errorf("send error message: %w", nerr))
			}
		}
		return err
	}
	return nil
}

func (f *Forwarder) deliver(ctx context.Context, msgs []receiver.Message) error {
	emails := make([]message.Email, 0, len(msgs))
	for _, m := range msgs {
		raw, err := f.receiver.FetchRaw(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("fetch message: %w", err)
		}
		email, err := message.Decode(raw.Content, raw.Snippet)
		if err != nil {
			return fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		emails = append(emails, email)
	}

	message.NormalizeAll(emails)

	if err := f.notifier.Notify(ctx, emails); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// relabel removes the new label and adds the old one on every message.
func (f *Forwarder) relabel(ctx context.Context, logger *slog.Logger, msgs []receiver.Message, add, remove receiver.Label) error {
	var errs []error
	for _, m := range msgs {
		if err := f.receiver.SetLabels(ctx, m.ID, add.ID, remove.ID); err != nil {
			logger.Error("relabel failed", "msg_id", m.ID, "error", err)
			errs = append(errs, fmt.Errorf("relabel %s: %w", m.ID, err))
			continue
		}
		logger.Debug("relabeled", "msg_id", m.ID, "from", remove.Name, "to", add.Name)
	}
	if len(errs) == 0 {
		logger.Info("relabeled emails", "count", len(msgs), "to", add.Name)
	}
	return errors.Join(errs...)
}
