package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/events"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/store"
	"go.uber.org/zap"
)

// DocumentStore is the set of operations available for every resource kind.
type DocumentStore interface {
	Create(ctx context.Context, doc models.Document) (string, error)
	Get(ctx context.Context, id string) (json.RawMessage, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// DocumentRepository implements DocumentStore for one resource kind on one
// backend. Every call checks out its own session and returns it before
// reporting.
type DocumentRepository struct {
	backend  store.Backend
	kind     models.Kind
	notifier events.Notifier
}

func NewDocumentRepository(backend store.Backend, kind models.Kind, notifier events.Notifier) *DocumentRepository {
	if notifier == nil {
		notifier = events.Noop{}
	}
	return &DocumentRepository{backend: backend, kind: kind, notifier: notifier}
}

func (r *DocumentRepository) Kind() models.Kind { return r.kind }

// withSession runs fn with a fresh session and closes it on every path. A
// failed Connect leaves nothing to close.
func (r *DocumentRepository) withSession(ctx context.Context, fn func(store.Session) error) error {
	sess, err := r.backend.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn(ctx, "close store session", zap.String("backend", r.backend.Name()), zap.Error(cerr))
		}
	}()
	return fn(sess)
}

// failure wraps a store error with a message naming the document.
func (r *DocumentRepository) failure(id, what string, err error) error {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Msg: fmt.Sprintf("%s %s not found", r.kind.Label, id), Err: err}
	case errors.Is(err, store.ErrConflict):
		return &Error{Msg: fmt.Sprintf("%s %s was modified concurrently", r.kind.Label, id), Err: err}
	case errors.Is(err, store.ErrUnavailable):
		return &Error{Msg: fmt.Sprintf("%s %s %s: %s backend unavailable", r.kind.Label, id, what, r.backend.Name()), Err: err}
	case errors.Is(err, store.ErrInvalidPath):
		return &Error{Msg: err.Error(), Err: errors.Join(ErrValidation, err)}
	}
	return &Error{Msg: fmt.Sprintf("%s %s %s", r.kind.Label, id, what), Err: err}
}

func (r *DocumentRepository) notify(ctx context.Context, id string, action events.Action) {
	r.notifier.Notify(ctx, events.Change{
		Kind:    r.kind.Name,
		ID:      id,
		Action:  action,
		Backend: r.backend.Name(),
	})
}

// Create writes doc at the root of its key, replacing any existing document.
func (r *DocumentRepository) Create(ctx context.Context, doc models.Document) (string, error) {
	id, err := doc.ID(r.kind.IDField)
	if err != nil {
		return "", invalid("%s", err.Error())
	}

	err = r.withSession(ctx, func(s store.Session) error {
		return s.Set(ctx, r.kind.Key(id), store.RootPath, doc)
	})
	if err != nil {
		return "", r.failure(id, "not added", err)
	}
	r.notify(ctx, id, events.ActionCreated)
	return id, nil
}

// Get returns the stored document, or a NotFound error when the key holds
// nothing.
func (r *DocumentRepository) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := r.withSession(ctx, func(s store.Session) error {
		var err error
		doc, err = s.Get(ctx, r.kind.Key(id), store.RootPath)
		return err
	})
	if err != nil {
		return nil, r.failure(id, "not read", err)
	}
	return doc, nil
}

// Update sets each field of fields on the stored document in one batch.
// The call succeeds only if every field write is acknowledged; there is no
// rollback, so a failure may leave some fields written.
func (r *DocumentRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := r.checkFields(id, fields); err != nil {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	err := r.withSession(ctx, func(s store.Session) error {
		batch := s.Batch(r.kind.Key(id))
		for _, name := range names {
			batch.Set("."+name, fields[name])
		}
		outcomes, err := batch.Exec(ctx)
		if err != nil {
			return err
		}
		if store.Acknowledged(outcomes) {
			return nil
		}
		failed := 0
		for i, outcome := range outcomes {
			if outcome == nil {
				continue
			}
			failed++
			logger.Warn(ctx, "field not updated",
				zap.String("kind", r.kind.Name),
				zap.String("id", id),
				zap.String("field", names[i]),
				zap.Error(outcome),
			)
		}
		return fmt.Errorf("%w: %d of %d fields failed", store.ErrWriteIncomplete, failed, len(outcomes))
	})
	if err != nil {
		return r.failure(id, "not fully updated", err)
	}
	r.notify(ctx, id, events.ActionUpdated)
	return nil
}

func (r *DocumentRepository) checkFields(id string, fields map[string]any) error {
	for name, value := range fields {
		if !store.ValidFieldName(name) {
			return invalid("invalid field name %q", name)
		}
		if name == r.kind.IDField {
			if s, ok := value.(string); !ok || s != id {
				return invalid("%s cannot be changed", name)
			}
		}
	}
	return nil
}

// Delete removes the document. Deleting a key that holds nothing is a
// NotFound error.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	err := r.withSession(ctx, func(s store.Session) error {
		n, err := s.Delete(ctx, r.kind.Key(id))
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return r.failure(id, "not deleted", err)
	}
	r.notify(ctx, id, events.ActionDeleted)
	return nil
}
