package serverless

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
)

// eventShape holds just enough of an event to tell the payload formats apart.
type eventShape struct {
	Version    string `json:"version"`
	HTTPMethod string `json:"httpMethod"`
	RawPath    string `json:"rawPath"`
}

func isV2(raw json.RawMessage) (bool, error) {
	var p eventShape
	if err := json.Unmarshal(raw, &p); err != nil {
		return false, errors.Wrap(err, "decode event")
	}
	switch {
	case p.Version == "2.0" || p.RawPath != "":
		return true, nil
	case p.HTTPMethod != "":
		return false, nil
	default:
		return false, ErrUnknownEvent
	}
}

var ErrUnknownEvent = errors.New("unsupported lambda event")

func decodeBody(body string, b64 bool) ([]byte, error) {
	if !b64 {
		return []byte(body), nil
	}
	out, err := base64.StdEncoding.DecodeString(body)
	return out, errors.Wrap(err, "decode base64 body")
}

// requestV1 converts an API Gateway REST proxy event.
func requestV1(ctx context.Context, e events.APIGatewayProxyRequest) (*http.Request, error) {
	body, err := decodeBody(e.Body, e.IsBase64Encoded)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for k, vs := range e.MultiValueQueryStringParameters {
		q[k] = append(q[k], vs...)
	}
	for k, v := range e.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	u := &url.URL{Path: e.Path, RawQuery: q.Encode()}
	req, err := http.NewRequestWithContext(ctx, e.HTTPMethod, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	for k, vs := range e.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range e.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	req.RemoteAddr = e.RequestContext.Identity.SourceIP
	req.Host = req.Header.Get("Host")
	return req, nil
}

// requestV2 converts an HTTP API or Function URL event.
func requestV2(ctx context.Context, e events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	body, err := decodeBody(e.Body, e.IsBase64Encoded)
	if err != nil {
		return nil, err
	}
	u := &url.URL{Path: e.RawPath, RawQuery: e.RawQueryString}
	req, err := http.NewRequestWithContext(ctx, e.RequestContext.HTTP.Method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	for k, v := range e.Headers {
		// v2 joins repeated headers with commas
		req.Header.Set(k, v)
	}
	if len(e.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(e.Cookies, "; "))
	}
	req.RemoteAddr = e.RequestContext.HTTP.SourceIP
	req.Host = req.Header.Get("Host")
	if req.Host == "" {
		req.Host = e.RequestContext.DomainName
	}
	return req, nil
}

func responseV1(rec *recorder) events.APIGatewayProxyResponse {
	body, b64 := rec.encodedBody()
	return events.APIGatewayProxyResponse{
		StatusCode:        rec.status,
		MultiValueHeaders: rec.header,
		Body:              body,
		IsBase64Encoded:   b64,
	}
}

func responseV2(rec *recorder) events.APIGatewayV2HTTPResponse {
	body, b64 := rec.encodedBody()
	headers := map[string]string{}
	var cookies []string
	for k, vs := range rec.header {
		if k == "Set-Cookie" {
			cookies = append(cookies, vs...)
			continue
		}
		headers[k] = strings.Join(vs, ",")
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode:      rec.status,
		Headers:         headers,
		Cookies:         cookies,
		Body:            body,
		IsBase64Encoded: b64,
	}
}
