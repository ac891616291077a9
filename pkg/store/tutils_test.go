//go:build integration

package store

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

const (
	containerName      = "contactd-dynamotest"
	mongoContainerName = "contactd-mongotest"
	testMongoURI       = "mongodb://127.0.0.1:27018/contactd_test"
)

var testTable *DTable

// Creates container with local DynamoDB, creates table
func startLocalDynamo(t *testing.T) {
	cmd := exec.Command("docker", "run", "--rm", "-d", "--name", containerName,
		"-p", "8000:8000", "amazon/dynamodb-local:latest")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	var err error
	testTable, err = DTableConnect(TableName("ContactsTest"), Endpoint("http://127.0.0.1:8000"), Region(DefaultRegion))
	if err != nil {
		stopLocalDynamo()
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		err = testTable.Create(ctx)
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			stopLocalDynamo()
			t.Fatal(err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func stopLocalDynamo() {
	cmd := exec.Command("docker", "kill", containerName)
	cmd.Run()
}

// Starts a throwaway MongoDB and waits until it answers pings
func startLocalMongo(t *testing.T) {
	cmd := exec.Command("docker", "run", "--rm", "-d", "--name", mongoContainerName,
		"-p", "27018:27017", "mongo:7")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for {
		conn, err := OpenMongo(ctx, testMongoURI)
		if err == nil {
			conn.Close(ctx)
			return
		}
		select {
		case <-ctx.Done():
			stopLocalMongo()
			t.Fatal(err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func stopLocalMongo() {
	cmd := exec.Command("docker", "kill", mongoContainerName)
	cmd.Run()
}
