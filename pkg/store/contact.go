package store

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
)

const ContactKeyPrefix = "contact#"

// Contact is a submitted contact form.
type Contact struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	Subject   string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Message   string    `json:"message" bson:"message"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Origin    string    `json:"origin,omitempty" bson:"origin,omitempty"`
	UserAgent string    `json:"userAgent,omitempty" bson:"user_agent,omitempty"`
	RemoteIP  string    `json:"remoteIp,omitempty" bson:"remote_ip,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

//Option for NewContact
func CreatedAtOp(t time.Time) func(*Contact) error {
	return func(c *Contact) error {
		c.CreatedAt = t
		return nil
	}
}

//Option for NewContact, records where the submission came from
func SourceOp(origin, userAgent, remoteIP string) func(*Contact) error {
	return func(c *Contact) error {
		c.Origin = origin
		c.UserAgent = userAgent
		c.RemoteIP = remoteIP
		return nil
	}
}

//Factory method for Contact, assigns a ksuid carrying the creation time
func NewContact(name, email, message string, options ...func(*Contact) error) (*Contact, error) {
	c := &Contact{Name: name, Email: email, Message: message, CreatedAt: time.Now()}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.ID == "" {
		id, err := ksuid.NewRandomWithTime(c.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "generate contact id")
		}
		c.ID = id.String()
		// ksuid keeps second precision only
		c.CreatedAt = id.Time()
	}
	return c, nil
}

func (c *Contact) PK() string {
	if c.ID == "" {
		return ""
	}
	return ContactKeyPrefix + c.ID
}

func (c *Contact) AsDMap() (map[string]*dynamodb.AttributeValue, error) {
	out := map[string]interface{}{
		"PK":        c.PK(),
		"Kind":      "contact",
		"Name":      c.Name,
		"Email":     c.Email,
		"Message":   c.Message,
		"CreatedAt": c.CreatedAt.Unix(),
	}
	optional := map[string]string{
		"Subject":   c.Subject,
		"Phone":     c.Phone,
		"Origin":    c.Origin,
		"UserAgent": c.UserAgent,
		"RemoteIP":  c.RemoteIP,
	}
	for k, v := range optional {
		if v != "" {
			out[k] = v
		}
	}
	return dynamodbattribute.MarshalMap(out)
}

type dContact struct {
	PK        string
	Name      string
	Email     string
	Subject   string
	Message   string
	Phone     string
	Origin    string
	UserAgent string
	RemoteIP  string
	CreatedAt int64
}

func (c *Contact) LoadFromD(av map[string]*dynamodb.AttributeValue) error {
	item := dContact{}
	if err := dynamodbattribute.UnmarshalMap(av, &item); err != nil {
		return err
	}
	if !strings.HasPrefix(item.PK, ContactKeyPrefix) {
		return errors.Errorf("not a contact key: %q", item.PK)
	}
	c.ID = strings.TrimPrefix(item.PK, ContactKeyPrefix)
	c.Name = item.Name
	c.Email = item.Email
	c.Subject = item.Subject
	c.Message = item.Message
	c.Phone = item.Phone
	c.Origin = item.Origin
	c.UserAgent = item.UserAgent
	c.RemoteIP = item.RemoteIP
	c.CreatedAt = time.Unix(item.CreatedAt, 0).UTC()
	return nil
}
