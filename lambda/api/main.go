package main

import (
	"github.com/dmitriko/contactd/pkg/app"
	"github.com/dmitriko/contactd/pkg/serverless"
)

func newHandler() *serverless.Handler {
	a, err := app.Bootstrap()
	if err != nil {
		return serverless.NewHandler(app.Unavailable(err))
	}
	return a.LambdaHandler()
}

func main() {
	newHandler().Start()
}
