package store

import (
	"context"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/pkg/errors"
)

const DefaultRegion = "us-west-2"

var ErrNoSuchItem = errors.New(NO_SUCH_ITEM)

//Provides access to DynamoDB table
type DTable struct {
	db       *dynamodb.DynamoDB
	Name     string
	Region   string
	Endpoint string
	PKey     string
}

//DTableConnect option
func Endpoint(endpoint string) func(*DTable) error {
	return func(t *DTable) error {
		t.Endpoint = endpoint
		return nil
	}
}

//DTableConnect option
func Region(region string) func(*DTable) error {
	return func(t *DTable) error {
		t.Region = region
		return nil
	}
}

//DTableConnect option
func TableName(name string) func(*DTable) error {
	return func(t *DTable) error {
		if name == "" {
			return errors.New("table name is empty")
		}
		t.Name = name
		return nil
	}
}

//Creates DynamoDB client for the table, does not do any I/O
func DTableConnect(options ...func(*DTable) error) (*DTable, error) {
	t := &DTable{PKey: "PK", Region: DefaultRegion}
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}
	if t.Name == "" {
		return nil, errors.New("table name is not set")
	}
	cfg := &aws.Config{Region: aws.String(t.Region)}
	if t.Endpoint != "" {
		cfg.Endpoint = aws.String(t.Endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "aws session")
	}
	t.db = dynamodb.New(sess)
	return t, nil
}

// OpenDynamo connects to the table and checks it exists.
func OpenDynamo(ctx context.Context, options ...func(*DTable) error) (*DTable, error) {
	t, err := DTableConnect(options...)
	if err != nil {
		return nil, err
	}
	if err := t.Ping(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// parseDynamoURI reads dynamodb://<table>?region=<r>&endpoint=<url>.
func parseDynamoURI(u *url.URL) ([]func(*DTable) error, error) {
	name := u.Host
	if name == "" {
		name = strings.Trim(u.Path, "/")
	}
	if name == "" {
		return nil, errors.New("dynamodb uri has no table name")
	}
	opts := []func(*DTable) error{TableName(name)}
	q := u.Query()
	region := q.Get("region")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region != "" {
		opts = append(opts, Region(region))
	}
	if e := q.Get("endpoint"); e != "" {
		opts = append(opts, Endpoint(e))
	}
	return opts, nil
}

func (t *DTable) Create(ctx context.Context) error {
	_, err := t.db.CreateTableWithContext(ctx, contactTableInput(t.Name))
	return errors.Wrapf(err, "create table %s", t.Name)
}

type DMapper interface {
	AsDMap() (map[string]*dynamodb.AttributeValue, error)
	LoadFromD(map[string]*dynamodb.AttributeValue) error
	PK() string
}

// Option to check uniqueness of stored item by cheking PK
func UniqueOp() func(*dynamodb.PutItemInput) error {
	return func(pii *dynamodb.PutItemInput) error {
		pii.ConditionExpression = aws.String("attribute_not_exists(PK)")
		return nil
	}
}

func (t *DTable) StoreItem(ctx context.Context, item DMapper,
	options ...func(*dynamodb.PutItemInput) error) (*dynamodb.PutItemOutput, error) {
	av, err := item.AsDMap()
	if err != nil {
		return nil, err
	}
	input := &dynamodb.PutItemInput{
		Item:      av,
		TableName: aws.String(t.Name),
	}
	for _, ops := range options {
		if err := ops(input); err != nil {
			return nil, err
		}
	}
	return t.db.PutItemWithContext(ctx, input)
}

func (t *DTable) FetchItem(ctx context.Context, pk string, item DMapper) error {
	result, err := t.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.Name),
		Key: map[string]*dynamodb.AttributeValue{
			t.PKey: {
				S: aws.String(pk),
			},
		},
	})
	if err != nil {
		return err
	}
	if len(result.Item) == 0 {
		return ErrNoSuchItem
	}
	return item.LoadFromD(result.Item)
}

func (t *DTable) SaveContact(ctx context.Context, c *Contact) error {
	_, err := t.StoreItem(ctx, c, UniqueOp())
	return errors.Wrapf(err, "store contact %s", c.ID)
}

func (t *DTable) FetchContact(ctx context.Context, id string) (*Contact, error) {
	c := &Contact{}
	if err := t.FetchItem(ctx, ContactKeyPrefix+id, c); err != nil {
		return nil, err
	}
	return c, nil
}

//Scans the table for contacts, newest first
func (t *DTable) ListContacts(ctx context.Context, opts ListOptions) ([]*Contact, error) {
	filter := "begins_with(PK, :prefix)"
	values := map[string]*dynamodb.AttributeValue{
		":prefix": {S: aws.String(ContactKeyPrefix)},
	}
	if !opts.Since.IsZero() {
		filter += " AND CreatedAt >= :since"
		values[":since"] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(opts.Since.Unix(), 10))}
	}
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(t.Name),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
	}
	var out []*Contact
	var loadErr error
	err := t.db.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, last bool) bool {
		for _, av := range page.Items {
			c := &Contact{}
			if loadErr = c.LoadFromD(av); loadErr != nil {
				return false
			}
			out = append(out, c)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan contacts")
	}
	if loadErr != nil {
		return nil, loadErr
	}
	// ksuids sort by creation time
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (t *DTable) Ping(ctx context.Context) error {
	_, err := t.db.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(t.Name),
	})
	return errors.Wrapf(err, "describe table %s", t.Name)
}

func (t *DTable) Close(context.Context) error { return nil }

func (t *DTable) Backend() string { return "dynamodb" }
