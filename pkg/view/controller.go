// Package view holds view-scoped state for one entity list and its
// create/edit form, and applies mutations to it.
//
// Deletes are optimistic: the row leaves the list before the store confirms,
// and a failed delete re-lists from the store. Creates and updates block
// until the store answers and keep the form open on failure.
package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/repository"
	"jobhunt/pkg/session"
)

var (
	ErrSubmitInFlight = errors.New("a save is already in progress")
	ErrFormClosed     = errors.New("form is not open")
	ErrClosed         = errors.New("view is closed")
	ErrNotFound       = errors.New("item not in view")
)

// Row is an entity that can prefill its edit form.
type Row[F any] interface {
	domain.Entity
	Fields() F
}

// Form is the state of the create/edit surface.
type Form[F any] struct {
	Open       bool
	EditingID  string
	Draft      F
	Submitting bool
	Error      string
}

// State is an immutable snapshot handed to subscribers.
type State[E any, F any] struct {
	Items     []E
	Loading   bool
	LoadError string
	Form      Form[F]
}

// Controller owns one view's copy of a collection. It is safe for
// concurrent use; subscribers are called outside the lock.
type Controller[E Row[F], F domain.Fields] struct {
	repo     repository.Repository[E, F]
	identity session.Accessor

	mu      sync.Mutex
	state   State[E, F]
	gen     uint64
	closed  bool
	subs    map[int]func(State[E, F])
	nextSub int
}

func New[E Row[F], F domain.Fields](repo repository.Repository[E, F], identity session.Accessor) *Controller[E, F] {
	return &Controller[E, F]{
		repo:     repo,
		identity: identity,
		state:    State[E, F]{Items: []E{}},
		subs:     make(map[int]func(State[E, F])),
	}
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (c *Controller[E, F]) Subscribe(fn func(State[E, F])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Snapshot returns the current state.
func (c *Controller[E, F]) Snapshot() State[E, F] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Visible returns the current items matching a search query.
func (c *Controller[E, F]) Visible(query string) []E {
	items := c.Snapshot().Items
	out := make([]E, 0, len(items))
	for _, item := range items {
		if domain.Matches(item, query) {
			out = append(out, item)
		}
	}
	return out
}

// Load fetches the signed-in user's rows. Without a session the view is
// empty and no error is returned. A load superseded by a newer load or a
// delete is discarded.
func (c *Controller[E, F]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.state.Loading = true
	c.publishUnlock()

	items := []E{}
	var err error
	if user, ok := c.identity.CurrentIdentity(ctx); ok {
		items, err = c.repo.List(ctx, user.ID)
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.state.Loading = false
	if err != nil {
		c.state.LoadError = err.Error()
	} else {
		c.state.Items = items
		c.state.LoadError = ""
	}
	c.publishUnlock()
	return err
}

// Delete removes id from the view at once, then from the store. If the
// store rejects the delete the view is re-listed, and the store error is
// returned for logging; it is not shown on the form.
func (c *Controller[E, F]) Delete(ctx context.Context, id string) error {
	user, ok := c.identity.CurrentIdentity(ctx)
	if !ok {
		return domain.ErrAuthRequired
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	kept := make([]E, 0, len(c.state.Items))
	for _, item := range c.state.Items {
		if item.EntityID() != id {
			kept = append(kept, item)
		}
	}
	c.state.Items = kept
	// An in-flight load would bring the row back.
	c.gen++
	c.state.Loading = false
	c.publishUnlock()

	err := c.repo.Delete(ctx, id, user.ID)
	if err == nil {
		return nil
	}
	slog.Warn("delete failed, resyncing view", "id", id, "err", err)
	if loadErr := c.Load(ctx); loadErr != nil && !errors.Is(loadErr, ErrClosed) {
		return errors.Join(err, loadErr)
	}
	return err
}

// OpenCreate opens an empty form prefilled with draft.
func (c *Controller[E, F]) OpenCreate(draft F) error {
	return c.openForm("", draft)
}

// OpenEdit opens the form for the item id, prefilled with its fields.
func (c *Controller[E, F]) OpenEdit(id string) error {
	snap := c.Snapshot()
	for _, item := range snap.Items {
		if item.EntityID() == id {
			return c.openForm(id, item.Fields())
		}
	}
	return ErrNotFound
}

func (c *Controller[E, F]) openForm(editingID string, draft F) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Form.Submitting {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.state.Form = Form[F]{Open: true, EditingID: editingID, Draft: draft}
	c.publishUnlock()
	return nil
}

// Cancel closes the form. It is refused while a save is in flight.
func (c *Controller[E, F]) Cancel() error {
	c.mu.Lock()
	if c.state.Form.Submitting {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.state.Form = Form[F]{}
	c.publishUnlock()
	return nil
}

// Submit saves fields through the open form and blocks until the store
// answers. On failure the form stays open with the draft and the error
// message. On success the form closes and the view is re-listed.
func (c *Controller[E, F]) Submit(ctx context.Context, fields F) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.state.Form.Open:
		c.mu.Unlock()
		return ErrFormClosed
	case c.state.Form.Submitting:
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.state.Form.Submitting = true
	c.state.Form.Error = ""
	c.state.Form.Draft = fields
	editingID := c.state.Form.EditingID
	c.publishUnlock()

	var err error
	if user, ok := c.identity.CurrentIdentity(ctx); !ok {
		err = domain.ErrAuthRequired
	} else if editingID != "" {
		_, err = c.repo.Update(ctx, editingID, user.ID, fields)
	} else {
		_, err = c.repo.Create(ctx, user.ID, fields)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.state.Form.Submitting = false
	if err != nil {
		c.state.Form.Error = err.Error()
		c.publishUnlock()
		return err
	}
	c.state.Form = Form[F]{}
	c.publishUnlock()
	return c.Load(ctx)
}

// Close detaches subscribers. Responses arriving afterwards are dropped.
func (c *Controller[E, F]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[int]func(State[E, F]))
}

func (c *Controller[E, F]) snapshotLocked() State[E, F] {
	snap := c.state
	snap.Items = make([]E, len(c.state.Items))
	copy(snap.Items, c.state.Items)
	return snap
}

// publishUnlock snapshots state, releases mu and notifies subscribers.
func (c *Controller[E, F]) publishUnlock() {
	snap := c.snapshotLocked()
	subs := make([]func(State[E, F]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
