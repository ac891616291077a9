package serverless

import (
	"bytes"
	"encoding/base64"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

// recorder buffers a response so it can be returned as a Lambda result.
type recorder struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}, status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
}

func (r *recorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}

// encodedBody returns the body and whether it had to be base64 encoded.
func (r *recorder) encodedBody() (string, bool) {
	b := r.body.Bytes()
	if isText(r.header.Get("Content-Type")) && utf8.Valid(b) {
		return string(b), false
	}
	if len(b) == 0 {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(b), true
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") ||
		mt == "application/json" ||
		strings.HasSuffix(mt, "+json") ||
		mt == "application/xml" ||
		mt == "application/javascript"
}
