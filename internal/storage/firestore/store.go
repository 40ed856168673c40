// Package firestore implements push.Store on Google Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

// DefaultCollection is the root collection holding subscription documents.
const DefaultCollection = "push_subscriptions"

// Store implements push.Store using Firestore.
type Store struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

func NewStore(client *firestore.Client, logger *slog.Logger) *Store {
	return &Store{
		client:     client,
		collection: DefaultCollection,
		logger:     logger.With("component", "FirestoreStore"),
	}
}

// subscriptionRecord is the internal DB representation.
type subscriptionRecord struct {
	UserID    string    `firestore:"user_id"`
	Endpoint  string    `firestore:"endpoint"`
	Keys      push.Keys `firestore:"keys"`
	CreatedAt time.Time `firestore:"created_at"`
}

// Register creates the document keyed by the endpoint hash. An existing
// document means the endpoint is already registered, which is a no-op.
func (s *Store) Register(ctx context.Context, sub push.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	record := subscriptionRecord{
		UserID:    sub.UserID,
		Endpoint:  sub.Endpoint,
		Keys:      sub.Keys,
		CreatedAt: time.Now(),
	}

	_, err := s.docs().Doc(SubscriptionID(sub.Endpoint)).Create(ctx, record)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return &push.StorageError{Op: "register", Err: err}
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]push.Subscription, error) {
	iter := s.docs().Where("user_id", "==", userID).Documents(ctx)
	defer iter.Stop()

	subs := make([]push.Subscription, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &push.StorageError{Op: "list", Err: fmt.Errorf("firestore iteration failed: %w", err)}
		}

		var record subscriptionRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt documents cannot be delivered to; skip them.
			s.logger.Warn("Skipping undecodable subscription", "doc_id", doc.Ref.ID, "user", userID, "err", err)
			continue
		}
		subs = append(subs, push.Subscription{
			ID:       doc.Ref.ID,
			UserID:   record.UserID,
			Endpoint: record.Endpoint,
			Keys:     record.Keys,
		})
	}
	return subs, nil
}

// DeleteByID deletes the document. Firestore treats deleting a missing
// document as success.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.docs().Doc(id).Delete(ctx); err != nil {
		return &push.StorageError{Op: "delete", Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) docs() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

// SubscriptionID derives the document id from the endpoint, which keeps
// endpoints unique and avoids hot-spotting on sequential ids.
func SubscriptionID(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}
