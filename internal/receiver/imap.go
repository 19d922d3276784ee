package receiver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPReceiver treats IMAP folders as labels. Message IDs are UIDs within the
// folder most recently passed to List; SetLabels moves a message out of the
// folder named by remove into the one named by add.
//
// A failed command drops the connection, and a cached connection that no
// longer answers NOOP is replaced, so the next call dials again.
type IMAPReceiver struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger

	client   *imapclient.Client
	selected string // folder selected on client
	folder   string // folder of the last List, kept across reconnects
}

// NewIMAP creates a new IMAP receiver. The connection is opened on first use.
func NewIMAP(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *IMAPReceiver {
	return &IMAPReceiver{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

func (r *IMAPReceiver) connect() (*imapclient.Client, error) {
	if r.client != nil {
		err := r.client.Noop().Wait()
		if err == nil {
			return r.client, nil
		}
		r.logger.Warn("imap connection lost, reconnecting", "host", r.host, "error", err)
		r.drop()
	}

	addr := net.JoinHostPort(r.host, fmt.Sprintf("%d", r.port))

	var client *imapclient.Client
	var err error

	if r.useTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: r.host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	if err := client.Login(r.username, r.password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login %s: %w", r.username, err)
	}

	r.logger.Debug("imap connected", "host", r.host, "user", r.username)
	r.client = client
	return client, nil
}

func (r *IMAPReceiver) selectFolder(folder string) (*imapclient.Client, error) {
	client, err := r.connect()
	if err != nil {
		return nil, err
	}
	if r.selected == folder {
		return client, nil
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		r.drop()
		return nil, fmt.Errorf("imap select %s: %w", folder, err)
	}
	r.selected = folder
	return client, nil
}

func (r *IMAPReceiver) Labels(_ context.Context) ([]Label, error) {
	client, err := r.connect()
	if err != nil {
		return nil, err
	}
	boxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		r.drop()
		return nil, fmt.Errorf("imap list: %w", err)
	}
	labels := make([]Label, 0, len(boxes))
	for _, b := range boxes {
		labels = append(labels, Label{ID: b.Mailbox, Name: b.Mailbox})
	}
	return labels, nil
}

func (r *IMAPReceiver) List(_ context.Context, labelID string) ([]Message, error) {
	client, err := r.selectFolder(labelID)
	if err != nil {
		return nil, err
	}
	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		r.drop()
		return nil, fmt.Errorf("imap search %s: %w", labelID, err)
	}
	r.folder = labelID

	uids := searchData.AllUIDs()
	msgs := make([]Message, 0, len(uids))
	for _, uid := range uids {
		msgs = append(msgs, Message{ID: strconv.FormatUint(uint64(uid), 10)})
	}
	r.logger.Debug("found messages in folder", "folder", labelID, "count", len(msgs))
	return msgs, nil
}

func (r *IMAPReceiver) FetchRaw(_ context.Context, id string) (Raw, error) {
	uid, err := parseUID(id)
	if err != nil {
		return Raw{}, err
	}
	if r.folder == "" {
		return Raw{}, fmt.Errorf("imap fetch %s: no folder listed", id)
	}
	client, err := r.selectFolder(r.folder)
	if err != nil {
		return Raw{}, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}
	buffers, err := client.Fetch(imap.UIDSetNum(uid), fetchOptions).Collect()
	if err != nil {
		r.drop()
		return Raw{}, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	if len(buffers) == 0 {
		return Raw{}, fmt.Errorf("imap fetch %s: message not found in %s", id, r.folder)
	}
	return Raw{Content: buffers[0].FindBodySection(bodySection)}, nil
}

func (r *IMAPReceiver) SetLabels(_ context.Context, id, add, remove string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	client, err := r.selectFolder(remove)
	if err != nil {
		return err
	}
	if _, err := client.Move(imap.UIDSetNum(uid), add).Wait(); err != nil {
		r.drop()
		return fmt.Errorf("imap move %s from %s to %s: %w", id, remove, add, err)
	}
	return nil
}

func (r *IMAPReceiver) Close() error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Logout().Wait(); err != nil {
		r.logger.Debug("imap logout failed", "error", err)
	}
	err := r.client.Close()
	r.client = nil
	r.selected = ""
	return err
}

// drop discards the current connection without logging out.
func (r *IMAPReceiver) drop() {
	if r.client == nil {
		return
	}
	if err := r.client.Close(); err != nil {
		r.logger.Debug("imap close failed", "error", err)
	}
	r.client = nil
	r.selected = ""
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid imap uid %q", id)
	}
	return imap.UID(n), nil
}
