// Package notify renders account emails and hands them to a delivery backend.
// Delivery failures are reported to callers, which log them and carry on.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/queue"
)

// Invitation asks someone to join an organization.
type Invitation struct {
	Email            string
	OrganizationName string
	RoleName         string
	InviterName      string
	Token            string
	ExpiresAt        time.Time
}

// PasswordReset carries a reset link.
type PasswordReset struct {
	Email     string
	Name      string
	Token     string
	ExpiresAt time.Time
}

// PasswordChanged confirms a completed reset or change.
type PasswordChanged struct {
	Email string
	Name  string
}

// DeletionConfirmation carries the organization deletion confirmation link.
type DeletionConfirmation struct {
	Email            string
	Name             string
	OrganizationID   uuid.UUID
	OrganizationName string
	Token            string
	ExpiresAt        time.Time
}

// Notifier is the outbound notification boundary.
type Notifier interface {
	SendInvitation(ctx context.Context, n Invitation) error
	SendPasswordReset(ctx context.Context, n PasswordReset) error
	SendPasswordChanged(ctx context.Context, n PasswordChanged) error
	SendDeletionConfirmation(ctx context.Context, n DeletionConfirmation) error
}

// Message is a rendered email.
type Message struct {
	Type    string
	To      string
	Subject string
	Body    string
	Token   string
}

// Renderer turns notifications into messages with links to the frontend.
type Renderer struct {
	frontendURL string
	productName string
}

// NewRenderer creates a renderer.
func NewRenderer(frontendURL, productName string) *Renderer {
	return &Renderer{frontendURL: strings.TrimRight(frontendURL, "/"), productName: productName}
}

func (r *Renderer) link(path string, token string) string {
	return r.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (r *Renderer) Invitation(n Invitation) Message {
	inviter := n.InviterName
	if inviter == "" {
		inviter = "A teammate"
	}
	return Message{
		Type:    models.EmailTypeInvitation,
		To:      n.Email,
		Subject: fmt.Sprintf("You have been invited to join %s on %s", n.OrganizationName, r.productName),
		Body: fmt.Sprintf("%s invited you to join %s as %s.\n\nAccept the invitation: %s\n\nThis link expires on %s.",
			inviter, n.OrganizationName, n.RoleName, r.link("/accept-invitation", n.Token), n.ExpiresAt.UTC().Format(time.RFC1123)),
		Token: n.Token,
	}
}

func (r *Renderer) PasswordReset(n PasswordReset) Message {
	return Message{
		Type:    models.EmailTypePasswordReset,
		To:      n.Email,
		Subject: "Reset your " + r.productName + " password",
		Body: fmt.Sprintf("Hi %s,\n\nReset your password: %s\n\nThe link expires on %s. If you did not ask for this, ignore this email.",
			n.Name, r.link("/reset-password", n.Token), n.ExpiresAt.UTC().Format(time.RFC1123)),
		Token: n.Token,
	}
}

func (r *Renderer) PasswordChanged(n PasswordChanged) Message {
	return Message{
		Type:    models.EmailTypePasswordChanged,
		To:      n.Email,
		Subject: "Your " + r.productName + " password was changed",
		Body:    fmt.Sprintf("Hi %s,\n\nYour password was changed and all sessions were signed out.", n.Name),
	}
}

func (r *Renderer) DeletionConfirmation(n DeletionConfirmation) Message {
	return Message{
		Type:    models.EmailTypeDeletionConfirmation,
		To:      n.Email,
		Subject: fmt.Sprintf("Confirm deletion of %s", n.OrganizationName),
		Body: fmt.Sprintf("Hi %s,\n\nConfirm the permanent deletion of %s: %s\n\nThe link expires on %s.",
			n.Name, n.OrganizationName, r.link("/organizations/"+n.OrganizationID.String()+"/delete/confirm", n.Token),
			n.ExpiresAt.UTC().Format(time.RFC1123)),
		Token: n.Token,
	}
}

// EmailQueue accepts email jobs.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueNotifier enqueues rendered messages for the worker.
type QueueNotifier struct {
	queue    EmailQueue
	renderer *Renderer
}

// NewQueueNotifier creates a queue-backed notifier.
func NewQueueNotifier(q EmailQueue, r *Renderer) *QueueNotifier {
	return &QueueNotifier{queue: q, renderer: r}
}

func (n *QueueNotifier) enqueue(ctx context.Context, m Message) error {
	return n.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      m.Type,
		RecipientEmail: m.To,
		Subject:        m.Subject,
		BodyText:       m.Body,
	})
}

func (n *QueueNotifier) SendInvitation(ctx context.Context, v Invitation) error {
	return n.enqueue(ctx, n.renderer.Invitation(v))
}

func (n *QueueNotifier) SendPasswordReset(ctx context.Context, v PasswordReset) error {
	return n.enqueue(ctx, n.renderer.PasswordReset(v))
}

func (n *QueueNotifier) SendPasswordChanged(ctx context.Context, v PasswordChanged) error {
	return n.enqueue(ctx, n.renderer.PasswordChanged(v))
}

func (n *QueueNotifier) SendDeletionConfirmation(ctx context.Context, v DeletionConfirmation) error {
	return n.enqueue(ctx, n.renderer.DeletionConfirmation(v))
}

// LogNotifier logs notifications instead of sending them. Links are logged only when logLinks is set.
type LogNotifier struct {
	renderer *Renderer
	logger   *zap.Logger
	logLinks bool
}

// NewLogNotifier creates a logging notifier.
func NewLogNotifier(r *Renderer, logger *zap.Logger, logLinks bool) *LogNotifier {
	return &LogNotifier{renderer: r, logger: logger, logLinks: logLinks}
}

func (n *LogNotifier) log(m Message) error {
	fields := []zap.Field{zap.String("type", m.Type), zap.String("to", m.To), zap.String("subject", m.Subject)}
	if n.logLinks {
		fields = append(fields, zap.String("body", m.Body))
	}
	n.logger.Info("notification", fields...)
	return nil
}

func (n *LogNotifier) SendInvitation(_ context.Context, v Invitation) error {
	return n.log(n.renderer.Invitation(v))
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, v PasswordReset) error {
	return n.log(n.renderer.PasswordReset(v))
}

func (n *LogNotifier) SendPasswordChanged(_ context.Context, v PasswordChanged) error {
	return n.log(n.renderer.PasswordChanged(v))
}

func (n *LogNotifier) SendDeletionConfirmation(_ context.Context, v DeletionConfirmation) error {
	return n.log(n.renderer.DeletionConfirmation(v))
}

// Recorder keeps rendered messages in memory. If Err is set every send
// records the message and then fails with Err.
type Recorder struct {
	mu       sync.Mutex
	renderer *Renderer
	messages []Message
	Err      error
}

// NewRecorder creates a recorder.
func NewRecorder() *Recorder {
	return &Recorder{renderer: NewRenderer("http://localhost:3000", "Teamspace")}
}

func (r *Recorder) record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return r.Err
}

// Messages returns a copy of recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// LastToken returns the token of the newest message of emailType.
func (r *Recorder) LastToken(emailType string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Type == emailType {
			return r.messages[i].Token
		}
	}
	return ""
}

func (r *Recorder) SendInvitation(_ context.Context, v Invitation) error {
	return r.record(r.renderer.Invitation(v))
}

func (r *Recorder) SendPasswordReset(_ context.Context, v PasswordReset) error {
	return r.record(r.renderer.PasswordReset(v))
}

func (r *Recorder) SendPasswordChanged(_ context.Context, v PasswordChanged) error {
	return r.record(r.renderer.PasswordChanged(v))
}

func (r *Recorder) SendDeletionConfirmation(_ context.Context, v DeletionConfirmation) error {
	return r.record(r.renderer.DeletionConfirmation(v))
}
