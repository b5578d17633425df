package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/sirupsen/logrus"
)

const maxEmailLength = 254

// SubscriberService registers alert subscribers
type SubscriberService struct {
	store  RecordStore
	logger *logrus.Entry
}

// NewSubscriberService creates a subscriber service
func NewSubscriberService(store RecordStore) *SubscriberService {
	return &SubscriberService{
		store:  store,
		logger: logrus.WithField("component", "SubscriberService"),
	}
}

// NormalizeEmail trims, validates and lower-cases an address.
// Display names ("Ram <ram@example.com>") are rejected.
func NormalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", shared.NewServiceError(shared.ErrorCategoryValidation, "EMAIL_REQUIRED",
			"Email is required.", "subscriber-service", "subscribe", false, nil)
	}
	if len(email) > maxEmailLength {
		return "", shared.NewServiceError(shared.ErrorCategoryValidation, "EMAIL_INVALID",
			"Please provide a valid email address.", "subscriber-service", "subscribe", false, nil)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email || !hasDottedDomain(addr.Address) {
		return "", shared.NewServiceError(shared.ErrorCategoryValidation, "EMAIL_INVALID",
			"Please provide a valid email address.", "subscriber-service", "subscribe", false, err)
	}
	return strings.ToLower(addr.Address), nil
}

func hasDottedDomain(address string) bool {
	at := strings.LastIndex(address, "@")
	domain := address[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// Subscribe stores a new subscriber. A repeated address yields a duplicate error.
func (s *SubscriberService) Subscribe(ctx context.Context, rawEmail string) (*models.Subscriber, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	subscriber, err := s.store.InsertSubscriber(ctx, email)
	if err != nil {
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) {
			serviceErr.LogError()
		} else {
			s.logger.WithError(err).Error("Failed to store subscriber")
		}
		return nil, err
	}

	s.logger.WithField("subscriber_id", subscriber.ID).Info("New subscriber registered")
	return subscriber, nil
}
