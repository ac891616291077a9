package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/dmitriko/contactd/pkg/config"
	"github.com/dmitriko/contactd/pkg/store"
)

const usage = `Contact form backend admin CLI

Usage:
  contactctl ping [--uri=<uri>]
  contactctl create-table [--table=<table>] [--region=<region>] [--endpoint=<url>]
  contactctl list [--uri=<uri>] [--since=<when>] [--limit=<n>]
  contactctl show <id> [--uri=<uri>]
  contactctl -h | --help

Options:
  -h --help           Show this screen.
  --uri=<uri>         Database connection string, default to $DATABASE_URI or $MONGO_URI
  --table=<table>     DynamoDB table name, default to $DYNAMO_TABLE
  --region=<region>   DynamoDB region, default to $DYNAMO_REGION
  --endpoint=<url>    DynamoDB endpoint for local testing, default to $DYNAMO_ENDPOINT
  --since=<when>      Only contacts created after: now, -<N>d or ISO datetime
  --limit=<n>         Maximum number of contacts to print [default: 50]
`

var DEFAULTS = map[string]string{
	"--table":    "DYNAMO_TABLE",
	"--region":   "DYNAMO_REGION",
	"--endpoint": "DYNAMO_ENDPOINT",
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	args, _ := docopt.ParseDoc(usage)
	for k, v := range DEFAULTS {
		if args[k] == nil {
			args[k] = os.Getenv(v)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	switch {
	case args["ping"].(bool):
		err = ping(ctx, args)
	case args["create-table"].(bool):
		err = createTable(ctx, args)
	case args["list"].(bool):
		err = list(ctx, args)
	case args["show"].(bool):
		err = show(ctx, args)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func uriFromArgs(args map[string]interface{}) (string, error) {
	if uri, ok := args["--uri"].(string); ok && uri != "" {
		return uri, nil
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURI == "" {
		return "", fmt.Errorf("--uri or DATABASE_URI must be set")
	}
	return cfg.DatabaseURI, nil
}

func connect(ctx context.Context, args map[string]interface{}) (store.Conn, error) {
	uri, err := uriFromArgs(args)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, uri)
}

func ping(ctx context.Context, args map[string]interface{}) error {
	start := time.Now()
	conn, err := connect(ctx, args)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	if err := conn.Ping(ctx); err != nil {
		return err
	}
	fmt.Printf("%s is reachable (%s)\n", conn.Backend(), time.Since(start).Round(time.Millisecond))
	return nil
}

func createTable(ctx context.Context, args map[string]interface{}) error {
	name := args["--table"].(string)
	if name == "" {
		return fmt.Errorf("--table must be set")
	}
	opts := []func(*store.DTable) error{store.TableName(name)}
	if region := args["--region"].(string); region != "" {
		opts = append(opts, store.Region(region))
	}
	if endpoint := args["--endpoint"].(string); endpoint != "" {
		opts = append(opts, store.Endpoint(endpoint))
	}
	table, err := store.DTableConnect(opts...)
	if err != nil {
		return err
	}
	if err := table.Create(ctx); err != nil {
		return err
	}
	fmt.Printf("Table %s is created in %s.\n", table.Name, table.Region)
	return nil
}

func list(ctx context.Context, args map[string]interface{}) error {
	opts := store.ListOptions{}
	if since, ok := args["--since"].(string); ok && since != "" {
		t, err := store.StrToTime(since)
		if err != nil {
			return err
		}
		opts.Since = t
	}
	limit, err := strconv.Atoi(args["--limit"].(string))
	if err != nil {
		return fmt.Errorf("--limit must be a number: %w", err)
	}
	opts.Limit = limit

	conn, err := connect(ctx, args)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	contacts, err := conn.ListContacts(ctx, opts)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		fmt.Printf("%s  %s  %-24s %s\n", c.ID, c.CreatedAt.Format(time.RFC3339), c.Email, c.Name)
	}
	fmt.Printf("%d contact(s)\n", len(contacts))
	return nil
}

func show(ctx context.Context, args map[string]interface{}) error {
	conn, err := connect(ctx, args)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	c, err := conn.FetchContact(ctx, args["<id>"].(string))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
