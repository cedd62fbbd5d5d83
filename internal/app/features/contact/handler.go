// internal/app/features/contact/handler.go
package contact

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/portfolio/httputil"
	"github.com/dalemusser/portfolio/internal/domain/models"
	"github.com/dalemusser/portfolio/logging"
	"github.com/dalemusser/portfolio/mail"
	"github.com/dalemusser/portfolio/metrics"
	"github.com/dalemusser/portfolio/middleware"
	"go.uber.org/zap"
)

// Fixed response bodies. Relay errors are never echoed to the caller.
const (
	MsgSent     = "Transmission successful!"
	MsgRequired = "All fields are required."
	MsgFailed   = "Transmission failed. Please try again."
)

// Sender hands one message to the outbound relay. *mail.Sender implements it.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Handler relays contact submissions to the site owner's mailbox.
// It holds no per-request state and is safe for concurrent use.
type Handler struct {
	sender    Sender
	to        string
	templates *mail.TemplateStore
	logger    *zap.Logger
}

// NewHandler returns a Handler that delivers to the operator address to.
func NewHandler(sender Sender, to string, logger *zap.Logger) (*Handler, error) {
	if sender == nil {
		return nil, errors.New("contact: sender is nil")
	}
	if to == "" {
		return nil, errors.New("contact: destination address is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	templates := mail.NewTemplateStore()
	if err := templates.Register(Template); err != nil {
		return nil, err
	}
	return &Handler{sender: sender, to: to, templates: templates, logger: logger}, nil
}

// ServeContact handles POST /api/contact. Every rejection, including a
// non-JSON Content-Type, answers 400 and is counted.
//
//	received → validated → {rejected | sending} → {sent-ok | send-failed} → responded
func (h *Handler) ServeContact(w http.ResponseWriter, r *http.Request) {
	log := logging.ForRequest(h.logger, r)

	if !middleware.IsJSON(r.Header.Get("Content-Type")) {
		log.Info("contact rejected", zap.String("reason", "content type"))
		h.reject(w)
		return
	}

	var sub models.ContactSubmission
	if err := httputil.BindJSON(r, &sub); err != nil {
		log.Info("contact rejected", zap.String("reason", err.Error()))
		h.reject(w)
		return
	}
	if err := sub.Validate(); err != nil {
		log.Info("contact rejected", zap.String("reason", err.Error()))
		h.reject(w)
		return
	}

	msg, err := h.templates.Render(Template.Name, sub)
	if err != nil {
		log.Error("contact template failed", zap.Error(err))
		h.fail(w)
		return
	}
	msg.To = []string{h.to}
	msg.ReplyTo = sub.Email

	// A disconnecting client does not abort a send already under way.
	ctx := context.WithoutCancel(r.Context())
	start := time.Now()
	err = h.sender.Send(ctx, msg)
	metrics.ObserveRelaySend(time.Since(start))
	if err != nil {
		log.Error("contact send failed", zap.Error(err))
		h.fail(w)
		return
	}

	metrics.ObserveContact(metrics.ResultSent)
	log.Info("contact sent")
	httputil.WriteMessage(w, http.StatusOK, MsgSent)
}

// ServeLegacy handles /api/send-email for every method. Only POST is
// accepted; anything else gets 405 with Allow: POST.
func (h *Handler) ServeLegacy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, middleware.MethodNotAllowedMessage)
		return
	}
	h.ServeContact(w, r)
}

func (h *Handler) reject(w http.ResponseWriter) {
	metrics.ObserveContact(metrics.ResultRejected)
	httputil.WriteMessage(w, http.StatusBadRequest, MsgRequired)
}

func (h *Handler) fail(w http.ResponseWriter) {
	metrics.ObserveContact(metrics.ResultFailed)
	httputil.WriteMessage(w, http.StatusInternalServerError, MsgFailed)
}
