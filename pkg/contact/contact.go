// Package contact implements the contact form submission route.
package contact

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dmitriko/contactd/pkg/dbconn"
	"github.com/dmitriko/contactd/pkg/gateway"
	"github.com/dmitriko/contactd/pkg/logging"
	"github.com/dmitriko/contactd/pkg/store"
)

// Request is the JSON payload of POST /api/contact.
type Request struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Subject string `json:"subject" validate:"max=200"`
	Message string `json:"message" validate:"required,max=5000"`
	Phone   string `json:"phone" validate:"max=40"`
}

func (r *Request) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)
	r.Phone = strings.TrimSpace(r.Phone)
}

type Handler struct {
	validate *validator.Validate
	log      *zap.Logger
}

func NewHandler(log *zap.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f.Tag.Get("json"))
	})
	return &Handler{validate: v, log: logging.OrNop(log)}
}

// Routes returns the routes to mount under /api.
func (h *Handler) Routes() []gateway.Route {
	return []gateway.Route{
		{Method: http.MethodPost, Pattern: "/contact", Handler: h.Create},
	}
}

// Create validates and stores a submission.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) error {
	var req Request
	if err := gateway.DecodeJSON(r, &req); err != nil {
		return err
	}
	req.normalize()
	if err := h.check(&req); err != nil {
		return err
	}

	conn, ok := dbconn.FromContext(r.Context())
	if !ok {
		return errors.New("contact: no database connection in request context")
	}
	c, err := store.NewContact(req.Name, req.Email, req.Message,
		store.SourceOp(r.Header.Get("Origin"), r.UserAgent(), clientIP(r)))
	if err != nil {
		return err
	}
	c.Subject = req.Subject
	c.Phone = req.Phone

	if err := conn.SaveContact(r.Context(), c); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	h.log.Info("contact received", zap.String("id", c.ID), zap.String("backend", conn.Backend()))

	gateway.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":      true,
		"id":      c.ID,
		"message": "Message received",
	})
	return nil
}

func (h *Handler) check(req *Request) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &gateway.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

func jsonName(tag string) string {
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// clientIP strips the port from RemoteAddr. Proxy headers are only reflected
// here when the gateway was told to trust them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
