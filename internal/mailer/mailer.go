package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	from   string
	sender Sender
}

func New(host string, port int, user, password, from string) *Mailer {
	return &Mailer{from: from, sender: gomail.NewDialer(host, port, user, password)}
}

// NewWithSender is used by tests to capture messages.
func NewWithSender(from string, s Sender) *Mailer {
	return &Mailer{from: from, sender: s}
}

func (m *Mailer) SendWelcome(_ context.Context, to, username string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Welcome to Expohub")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hi %s,\n\nyour account has been created. You can now publish expositions and sale ads.\n", username))
	return m.sender.DialAndSend(msg)
}
