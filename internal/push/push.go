// Package push sends APNs notifications for friend activity.
package push

import (
	"fmt"

	"common-grounds-backend/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

// Notifier delivers a short alert to a device token. Delivery is best-effort;
// callers must not fail their operation on a push error.
type Notifier interface {
	Notify(deviceToken, title, body string) error
}

// APNSNotifier sends notifications through Apple Push Notification service
type APNSNotifier struct {
	client *apns2.Client
	topic  string
}

// NewAPNSNotifier creates an APNs notifier from a p12 certificate
func NewAPNSNotifier(cfg config.PushConfig) (*APNSNotifier, error) {
	cert, err := certificate.FromP12File(cfg.CertFile, cfg.CertPass)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}

	client := apns2.NewClient(cert)
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return &APNSNotifier{client: client, topic: cfg.Topic}, nil
}

// Notify sends one alert notification
func (n *APNSNotifier) Notify(deviceToken, title, body string) error {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       n.topic,
		Payload:     payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default"),
	}

	resp, err := n.client.Push(notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !resp.Sent() {
		return fmt.Errorf("push rejected: %s", resp.Reason)
	}
	return nil
}

// NopNotifier drops notifications, for deployments without push configured
type NopNotifier struct{}

// Notify logs and discards the notification
func (NopNotifier) Notify(deviceToken, title, body string) error {
	log.Debug().Str("title", title).Msg("Push disabled, dropping notification")
	return nil
}
