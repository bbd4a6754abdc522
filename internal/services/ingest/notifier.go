package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/hydronet/hydronet/internal/storage"
)

// Notifier dispatches a telemetry message to a registration owner.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, message []byte) error
}

// TokenStore is the slice of the store the notifier needs to resolve and
// invalidate push tokens.
type TokenStore interface {
	PushTokenFor(ctx context.Context, ownerID string) (string, error)
	InvalidatePushToken(ctx context.Context, ownerID string) error
}

// PushNotifier posts the raw device message to an HTTP push gateway. The
// call sits behind a circuit breaker so a dead gateway cannot slow every
// ingest down to its timeout.
type PushNotifier struct {
	client     *resty.Client
	gatewayURL string
	tokens     TokenStore
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Entry
}

func NewPushNotifier(gatewayURL string, tokens TokenStore, log *logrus.Entry) *PushNotifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "push-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &PushNotifier{
		client:     resty.New().SetTimeout(3 * time.Second),
		gatewayURL: gatewayURL,
		tokens:     tokens,
		breaker:    cb,
		log:        log,
	}
}

type pushRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Notify resolves the owner's push token and posts the message. A gateway
// response saying the token is gone invalidates it so subsequent messages
// skip the dispatch instead of failing it repeatedly.
func (n *PushNotifier) Notify(ctx context.Context, ownerID string, message []byte) error {
	token, err := n.tokens.PushTokenFor(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil // owner opted out or token already invalidated
		}
		return err
	}

	_, err = n.breaker.Execute(func() (any, error) {
		resp, err := n.client.R().
			SetContext(ctx).
			SetBody(pushRequest{To: token, Body: string(message)}).
			Post(n.gatewayURL)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode() {
		case http.StatusNotFound, http.StatusGone:
			if err := n.tokens.InvalidatePushToken(ctx, ownerID); err != nil {
				n.log.WithField("owner", ownerID).WithError(err).Warn("ingest: stale token invalidation failed")
			}
			return nil, fmt.Errorf("stale push token for owner %s", ownerID)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("push gateway: %s", resp.Status())
		}
		return nil, nil
	})
	return err
}
