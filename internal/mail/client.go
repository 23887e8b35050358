package mail

import (
	"context"
	"fmt"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/bdaycal/internal/model"
	"github.com/nhle/bdaycal/internal/source"
)

const inbox = "INBOX"

// IMAPClient holds the settings needed to open a mailbox session.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	options  *imapclient.Options
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// WithOptions sets the options used when dialing, such as a TLS
// configuration with a private root CA or a debug writer.
func (c *IMAPClient) WithOptions(opts *imapclient.Options) *IMAPClient {
	c.options = opts
	return c
}

// Session is an authenticated connection with INBOX selected.
type Session struct {
	client *imapclient.Client
}

// Connect establishes a connection to the IMAP server, authenticates and
// selects INBOX. The caller must Close the returned session.
func (c *IMAPClient) Connect(
	_ context.Context,
) (*Session, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, c.options)
	} else {
		client, err = imapclient.DialStartTLS(addr, c.options)
	}
	if err != nil {
		return nil, &source.TransportError{
			SourceType: source.SourceTypeMail,
			Op:         "connect " + addr,
			Err:        err,
		}
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		return nil, &source.AuthError{
			SourceType: source.SourceTypeMail,
			Message: fmt.Sprintf(
				"authentication failed for %q", c.username,
			),
			Err: err,
		}
	}

	if _, err := client.Select(inbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, transportErr("SELECT "+inbox, err)
	}

	return &Session{client: client}, nil
}

// ListUnseen returns the UIDs of unread INBOX messages, most recent first.
func (s *Session) ListUnseen(_ context.Context) ([]model.MessageID, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, transportErr("UID SEARCH UNSEEN", err)
	}

	return newestFirst(searchData.AllUIDs()), nil
}

// FetchBody returns the readable body of the message with the given UID.
// The message is fetched with BODY.PEEK so an unmatched message stays unread.
func (s *Session) FetchBody(
	_ context.Context, id model.MessageID,
) (string, error) {
	uidSet := imap.UIDSetNum(imap.UID(id))

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return "", transportErr("UID FETCH", err)
		}
		return "", transportErr("UID FETCH", fmt.Errorf("message UID %d not found", id))
	}

	buf, err := msg.Collect()
	if err != nil {
		return "", transportErr("UID FETCH", err)
	}

	if err := fetchCmd.Close(); err != nil {
		return "", transportErr("UID FETCH", err)
	}

	return readableBody(buf.FindBodySection(bodySection)), nil
}

// Delete flags the message as \Deleted and expunges the mailbox right away.
// There is no undo.
func (s *Session) Delete(_ context.Context, id model.MessageID) error {
	uidSet := imap.UIDSetNum(imap.UID(id))

	storeCmd := s.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return transportErr("UID STORE +FLAGS (\\Deleted)", err)
	}

	if err := s.client.Expunge().Close(); err != nil {
		return transportErr("EXPUNGE", err)
	}

	return nil
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		return transportErr("LOGOUT", err)
	}
	return nil
}

// newestFirst reverses the ascending UID order the server returns.
func newestFirst(uids []imap.UID) []model.MessageID {
	ids := make([]model.MessageID, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, model.MessageID(uid))
	}
	slices.Reverse(ids)
	return ids
}

func transportErr(op string, err error) error {
	return &source.TransportError{
		SourceType: source.SourceTypeMail,
		Op:         op,
		Err:        err,
	}
}
