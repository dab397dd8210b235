package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

type staticDirectory map[string]string

func (d staticDirectory) EmailFor(_ context.Context, id string) (string, error) {
	email, ok := d[id]
	if !ok {
		return "", errors.New("unknown identity")
	}
	return email, nil
}

type captureNotifier struct {
	messages []Message
	err      error
}

func (c *captureNotifier) Send(_ context.Context, m Message) error {
	c.messages = append(c.messages, m)
	return c.err
}

func TestLoggerNotifierWritesVariables(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewLoggerNotifier(logger)

	err := n.Send(context.Background(), Message{Kind: KindWelcome, Destination: "a@b.com", Template: "welcome",
		Variables: map[string]string{"account_number": "123456789012"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"account_number":"123456789012"`)

	var nilNotifier *LoggerNotifier
	assert.NoError(t, nilNotifier.Send(context.Background(), Message{}))
}

func TestSMTPNotifierRendersAndSends(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail.local", Port: 2525, From: "no-reply@lumen.test"})
	require.NoError(t, err)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err = n.Send(context.Background(), Message{
		Kind:        KindWelcome,
		Destination: "a@b.com",
		Template:    "welcome",
		Variables:   map[string]string{"display_name": "Jo", "account_number": "123456789012"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"a@b.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Welcome to Lumen Bank")
	assert.Contains(t, gotMsg, "123456789012")
	assert.Contains(t, gotMsg, "Jo")
}

func TestSMTPNotifierUnknownTemplate(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail.local", Port: 25})
	require.NoError(t, err)
	_, err = n.Render(Message{Template: "missing"})
	assert.Error(t, err)
}

func TestAMQPNotifierPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	n, err := NewAMQPNotifier(ch, "onboarding.mail", "mail.send")
	require.NoError(t, err)
	assert.Equal(t, []string{"onboarding.mail:topic"}, ch.declared)

	msg := Message{Kind: KindConfirmationCode, Destination: "a@b.com", Template: "confirmation_code",
		Variables: map[string]string{"code": "12345678"}}
	require.NoError(t, n.Send(context.Background(), msg))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "onboarding.mail/mail.send.confirmation_code", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)

	var decoded Message
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestDispatcherSendsWelcome(t *testing.T) {
	notifier := &captureNotifier{}
	d := NewDispatcher(staticDirectory{"id-1": "a@b.com"}, notifier)

	require.NoError(t, d.Notify(context.Background(), "id-1", "123456789012", "Jo"))
	require.Len(t, notifier.messages, 1)
	got := notifier.messages[0]
	assert.Equal(t, KindWelcome, got.Kind)
	assert.Equal(t, "a@b.com", got.Destination)
	assert.Equal(t, "123456789012", got.Variables["account_number"])
	assert.Equal(t, "Jo", got.Variables["display_name"])
}

func TestDispatcherReturnsErrorsOnce(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("relay refused")}
	d := NewDispatcher(staticDirectory{"id-1": "a@b.com"}, notifier)

	err := d.Notify(context.Background(), "id-1", "123456789012", "Jo")
	require.Error(t, err)
	assert.Len(t, notifier.messages, 1, "exactly one attempt")

	err = d.Notify(context.Background(), "unknown", "123456789012", "Jo")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "resolve recipient"))
}
