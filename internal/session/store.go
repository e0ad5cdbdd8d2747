package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harborwallet/walletkit-backend/pkg/kv"
)

const (
	sessionKeyPrefix = "wc:session:"
	topicIndexKey    = "wc:sessions"
)

// ErrNotFound is returned when no session exists for a topic.
var ErrNotFound = errors.New("session not found")

// Store persists sessions in a key-value backend, one JSON document per topic
// plus a set indexing the live topics.
type Store struct {
	kv kv.Store
}

func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

func sessionKey(topic string) string {
	return sessionKeyPrefix + topic
}

// Put stores or replaces the session for its topic.
func (s *Store) Put(ctx context.Context, sess Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.Topic), raw); err != nil {
		return fmt.Errorf("store session %s: %w", sess.Topic, err)
	}
	if _, err := s.kv.SAdd(ctx, topicIndexKey, []byte(sess.Topic)); err != nil {
		return fmt.Errorf("index session %s: %w", sess.Topic, err)
	}
	return nil
}

// Get returns the session for a topic.
func (s *Store) Get(ctx context.Context, topic string) (Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(topic))
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session %s: %w", topic, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", topic, err)
	}
	return sess, nil
}

// Delete removes a session and its index entry. Deleting an unknown topic is
// not an error.
func (s *Store) Delete(ctx context.Context, topic string) error {
	if _, err := s.kv.Del(ctx, sessionKey(topic)); err != nil {
		return fmt.Errorf("delete session %s: %w", topic, err)
	}
	if _, err := s.kv.SRem(ctx, topicIndexKey, []byte(topic)); err != nil {
		return fmt.Errorf("unindex session %s: %w", topic, err)
	}
	return nil
}

// List returns all live sessions. Index entries whose document has vanished
// are skipped.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	topics, err := s.kv.SMembers(ctx, topicIndexKey)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]Session, 0, len(topics))
	for _, topic := range topics {
		sess, err := s.Get(ctx, string(topic))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// IsDeepLinked reports whether the session was opened through an app-to-app
// link. Unknown topics report false.
func (s *Store) IsDeepLinked(ctx context.Context, topic string) (bool, error) {
	sess, err := s.Get(ctx, topic)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.DeepLinked, nil
}
