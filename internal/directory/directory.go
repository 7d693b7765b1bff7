package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"firebase.google.com/go/v4/auth"
)

var ErrUserNotFound = errors.New("user not found")

type Profile struct {
	UID         string
	DisplayName string
	PhotoURL    string
	Email       string
}

// Directory resolves user ids to contact and profile data.
type Directory interface {
	Lookup(ctx context.Context, uid string) (*Profile, error)
}

// UserGetter is the part of the firebase auth client the directory needs.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

type FirebaseDirectory struct {
	users UserGetter
}

func NewFirebaseDirectory(users UserGetter) *FirebaseDirectory {
	return &FirebaseDirectory{users: users}
}

func (d *FirebaseDirectory) Lookup(ctx context.Context, uid string) (*Profile, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, ErrUserNotFound
	}
	u, err := d.users.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &Profile{UID: u.UID, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL, Email: u.Email}, nil
}

// StaticDirectory serves profiles from memory. Used in dev mode and tests.
type StaticDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewStaticDirectory(profiles ...Profile) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.UID] = p
	}
	return d
}

func (d *StaticDirectory) Put(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UID] = p
}

func (d *StaticDirectory) Lookup(ctx context.Context, uid string) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &p, nil
}
