package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailerSend(t *testing.T) {
	t.Parallel()
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "no-reply@example.com", FromName: "Teamspace"})
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "ann@example.com", "Hello", "line one\nline two"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"ann@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, "From: Teamspace <no-reply@example.com>\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two"))
}

func TestSMTPMailerRejectsHeaderInjection(t *testing.T) {
	t.Parallel()
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "a@example.com"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	assert.Error(t, m.Send(context.Background(), "ann@example.com\r\nBcc: eve@example.com", "Hi", "x"))
}

func TestSMTPMailerWrapsErrors(t *testing.T) {
	t.Parallel()
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "a@example.com"})
	boom := errors.New("connection refused")
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	assert.ErrorIs(t, m.Send(context.Background(), "ann@example.com", "Hi", "x"), boom)
}

func TestRendererLinks(t *testing.T) {
	t.Parallel()
	r := NewRenderer("https://app.example.com/", "Teamspace")
	msg := r.PasswordReset(PasswordReset{Email: "ann@example.com", Name: "Ann", Token: "abc"})
	assert.Contains(t, msg.Body, "https://app.example.com/reset-password?token=abc")
	assert.Equal(t, "abc", msg.Token)

	inv := r.Invitation(Invitation{Email: "bob@example.com", OrganizationName: "Acme", RoleName: "member", Token: "t"})
	assert.Contains(t, inv.Body, "A teammate invited you to join Acme as member.")
}
