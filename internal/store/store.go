// Package store persists alert groups and their escalation snapshots as
// JSON documents, one file per alert group. The snapshot is the durable
// state that drives every driver invocation, so writes go through a
// temp-file rename and reads validate before returning. Per-group file
// locks give the driver its at-most-one-execution guarantee.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/escalation"
)

var (
	// ErrNotFound indicates the alert group document does not exist.
	ErrNotFound = errors.New("alert group not found")

	// ErrInvalid indicates a document that fails validation.
	ErrInvalid = errors.New("invalid alert group document")
)

// Document is the persisted unit: the alert group, the route resolved
// for it, and the escalation snapshot once built. A nil snapshot means
// escalation has not started; an empty one means it started with nothing
// to do.
type Document struct {
	Group    *alertgroup.AlertGroup `json:"group"`
	Route    *escalation.Route      `json:"route,omitempty"`
	Snapshot *escalation.Snapshot   `json:"snapshot,omitempty"`
}

// Store reads and writes alert group documents under a data directory.
type Store struct {
	root string

	// users, when set, filters deleted users out of loaded snapshots.
	users escalation.UserDirectory
}

// New returns a store rooted at dir. The users directory may be nil.
func New(dir string, users escalation.UserDirectory) (*Store, error) {
	groups := filepath.Join(dir, "groups")
	if err := os.MkdirAll(groups, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{root: dir, users: users}, nil
}

// Root returns the store's data directory.
func (s *Store) Root() string { return s.root }

func (s *Store) groupPath(id string) string {
	return filepath.Join(s.root, "groups", id+".json")
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.root, "groups", id+".lock")
}

// List returns the IDs of all stored alert groups, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "groups"))
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads and validates one alert group document.
func (s *Store) Load(id string) (*Document, error) {
	data, err := os.ReadFile(s.groupPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading alert group %s: %w", id, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing alert group %s: %w", id, err)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	if doc.Snapshot != nil {
		escalation.FilterUsers(doc.Snapshot, s.users)
	}
	return &doc, nil
}

// Save validates and atomically replaces one alert group document. The
// group and its snapshot land in a single write, which is what keeps the
// cursor fields consistent with the group state they belong to.
func (s *Store) Save(doc *Document) error {
	if err := validate(doc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding alert group %s: %w", doc.Group.ID, err)
	}

	path := s.groupPath(doc.Group.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing alert group %s: %w", doc.Group.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing alert group %s: %w", doc.Group.ID, err)
	}
	return nil
}

// Lock acquires the alert group's execution lock. The returned release
// function must be called when the execution (and its persistence)
// finished. Blocks until the lock is available.
func (s *Store) Lock(id string) (release func(), err error) {
	fl := flock.New(s.lockPath(id))
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("locking alert group %s: %w", id, err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// TryLock attempts the execution lock without blocking. ok is false when
// another execution holds it.
func (s *Store) TryLock(id string) (release func(), ok bool, err error) {
	fl := flock.New(s.lockPath(id))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("locking alert group %s: %w", id, err)
	}
	if !locked {
		return nil, false, nil
	}
	return func() { _ = fl.Unlock() }, true, nil
}

func validate(doc *Document) error {
	if doc.Group == nil {
		return fmt.Errorf("%w: missing group", ErrInvalid)
	}
	if doc.Group.ID == "" {
		return fmt.Errorf("%w: missing group id", ErrInvalid)
	}
	if doc.Snapshot != nil {
		seen := map[int]bool{}
		for _, p := range doc.Snapshot.Policies {
			if seen[p.Order] {
				return fmt.Errorf("%w: duplicate policy order %d", ErrInvalid, p.Order)
			}
			seen[p.Order] = true
		}
		// Orders must be exactly 0..n-1; the cursor state machine walks
		// them by increment and treats a missing order as exhaustion.
		for i := range doc.Snapshot.Policies {
			if !seen[i] {
				return fmt.Errorf("%w: policy orders are not dense, missing order %d", ErrInvalid, i)
			}
		}
	}
	return nil
}
