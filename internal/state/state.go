// Package state persists the small amount of durable client state:
// the last authenticated identity (so a cold-started process can
// reconnect) and the deferred navigation slot (so a notification tap
// survives process death until the UI is ready to consume it).
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/chatlink/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.chatlink/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket   = []byte("app")
	identityKey = []byte("identity")
	deferredKey = []byte("deferred_nav")
)

// State wraps a bbolt database for all persistent application state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.chatlink/state.db, creating it
// if it does not exist. The app bucket is created on open.
func Load() (*State, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Identity returns the persisted identity, or nil when none is stored.
func (s *State) Identity() (*models.Identity, error) {
	var id *models.Identity

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(identityKey)
		if v == nil {
			return nil
		}

		id = &models.Identity{}

		return json.Unmarshal(v, id)
	})

	return id, err
}

// SetIdentity persists the identity used to start the current session.
// The token is stored verbatim: it must be replayed unchanged in the
// setup event on reconnect, so it cannot be hashed at rest.
func (s *State) SetIdentity(id models.Identity) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(id)
		if err != nil {
			return err
		}

		return tx.Bucket(appBucket).Put(identityKey, data)
	})
}

// ClearIdentity removes the persisted identity. Called on logout.
func (s *State) ClearIdentity() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(identityKey)
	})
}

// DeferredNav returns the persisted deferred navigation target. The
// second return value is false when the slot is empty.
func (s *State) DeferredNav() (models.NavTarget, bool, error) {
	var (
		target models.NavTarget
		found  bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(deferredKey)
		if v == nil {
			return nil
		}

		if err := json.Unmarshal(v, &target); err != nil {
			return err
		}

		found = true

		return nil
	})

	return target, found, err
}

// SetDeferredNav persists the deferred navigation target, replacing
// any previous value (last write wins).
func (s *State) SetDeferredNav(target models.NavTarget) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(target)
		if err != nil {
			return err
		}

		return tx.Bucket(appBucket).Put(deferredKey, data)
	})
}

// ClearDeferredNav empties the deferred navigation slot.
func (s *State) ClearDeferredNav() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(deferredKey)
	})
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database (containing the auth token) might end up with
		// wrong permissions or inside a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".chatlink", "state.db")
}
