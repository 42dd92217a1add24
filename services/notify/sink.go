package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jordan-wright/email"

	"auattend-backend/lib/telemetry"
	"auattend-backend/services/keystore"
)

// Message is one rendered notification.
type Message struct {
	Title string
	Body  string
	// Data rides along with push notifications so the client can
	// deep-link without parsing the body.
	Data map[string]string
}

// Sink delivers a message to whichever channel it implements. A sink
// silently skips targets that have no address for its channel.
type Sink interface {
	Send(ctx context.Context, target keystore.NotifyTarget, msg Message) error
}

// FCMSink pushes through Firebase Cloud Messaging's HTTP endpoint.
type FCMSink struct {
	http      *resty.Client
	serverKey string
}

type FCMConfig struct {
	Endpoint  string `json:"endpoint"`
	ServerKey string `json:"server_key"`
}

func NewFCMSink(config FCMConfig) *FCMSink {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "https://fcm.googleapis.com"
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(time.Second * 15)
	telemetry.InstrumentResty(client, "notify:fcm")
	return &FCMSink{
		http:      client,
		serverKey: config.ServerKey,
	}
}

type fcmPayload struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *FCMSink) Send(ctx context.Context, target keystore.NotifyTarget, msg Message) error {
	if target.FcmToken == "" {
		return nil
	}
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "key="+s.serverKey).
		SetBody(fcmPayload{
			To: target.FcmToken,
			Notification: fcmNotification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
		}).
		Post("/fcm/send")
	if err != nil {
		return err
	}
	if res.StatusCode() != 200 {
		return fmt.Errorf("fcm send failed with status %d: %s", res.StatusCode(), res.String())
	}
	return nil
}

// EmailSink delivers over plain smtp.
type EmailSink struct {
	config EmailConfig
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

func NewEmailSink(config EmailConfig) *EmailSink {
	return &EmailSink{config: config}
}

func (s *EmailSink) Send(ctx context.Context, target keystore.NotifyTarget, msg Message) error {
	if target.NotifyEmail == "" {
		return nil
	}
	e := email.NewEmail()
	e.From = s.config.From
	e.To = []string{target.NotifyEmail}
	e.Subject = msg.Title
	e.Text = []byte(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	return e.Send(addr, auth)
}
