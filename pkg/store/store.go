// Package store persists contact submissions in a document database.
// MongoDB and DynamoDB are supported; the backend is picked from the
// connection string scheme.
package store

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const NO_SUCH_ITEM = "NoSuchItem"

var ErrUnsupportedScheme = errors.New("unsupported database scheme")

// Conn is a live database connection shared by all requests of a process.
type Conn interface {
	SaveContact(ctx context.Context, c *Contact) error
	FetchContact(ctx context.Context, id string) (*Contact, error)
	ListContacts(ctx context.Context, opts ListOptions) ([]*Contact, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Backend() string
}

// ListOptions filters ListContacts. Zero values mean no filter.
type ListOptions struct {
	Since time.Time
	Limit int
}

// Open connects to the database named by uri and verifies it is reachable.
func Open(ctx context.Context, uri string) (Conn, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse database uri")
	}
	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		conn, err := OpenMongo(ctx, uri)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "dynamodb":
		opts, err := parseDynamoURI(u)
		if err != nil {
			return nil, err
		}
		table, err := OpenDynamo(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return table, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "scheme %q", u.Scheme)
	}
}

// Redact hides the password of a connection string so it can be logged.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
