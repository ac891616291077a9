package store

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	DefaultMongoDatabase = "contactd"
	ContactsCollection   = "contacts"
)

// MongoConn stores contacts in a MongoDB collection.
type MongoConn struct {
	client   *mongo.Client
	contacts *mongo.Collection
}

// OpenMongo connects and pings. The client is disconnected again when the
// ping fails so no background monitors leak.
func OpenMongo(ctx context.Context, uri string) (*MongoConn, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse mongodb uri")
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("contactd"))
	if err != nil {
		return nil, errors.Wrap(err, "mongodb connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongodb ping")
	}
	return &MongoConn{
		client:   client,
		contacts: client.Database(dbName).Collection(ContactsCollection),
	}, nil
}

func (m *MongoConn) SaveContact(ctx context.Context, c *Contact) error {
	_, err := m.contacts.InsertOne(ctx, c)
	return errors.Wrapf(err, "insert contact %s", c.ID)
}

func (m *MongoConn) FetchContact(ctx context.Context, id string) (*Contact, error) {
	c := &Contact{}
	err := m.contacts.FindOne(ctx, bson.M{"_id": id}).Decode(c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoSuchItem
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find contact %s", id)
	}
	return c, nil
}

func (m *MongoConn) ListContacts(ctx context.Context, opts ListOptions) ([]*Contact, error) {
	filter := bson.M{}
	if !opts.Since.IsZero() {
		filter["created_at"] = bson.M{"$gte": opts.Since}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	cur, err := m.contacts.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errors.Wrap(err, "find contacts")
	}
	var out []*Contact
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode contacts")
	}
	return out, nil
}

func (m *MongoConn) Ping(ctx context.Context) error {
	return errors.Wrap(m.client.Ping(ctx, readpref.Primary()), "mongodb ping")
}

func (m *MongoConn) Close(ctx context.Context) error {
	return errors.Wrap(m.client.Disconnect(ctx), "mongodb disconnect")
}

func (m *MongoConn) Backend() string { return "mongodb" }
