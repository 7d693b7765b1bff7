package directory

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	users map[string]*auth.UserRecord
	err   error
	calls int
}

func (f *fakeUsers) GetUser(ctx context.Context, uid string) (*auth.UserRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[uid]
	if !ok {
		return nil, errors.New("no such user")
	}
	return u, nil
}

func TestFirebaseDirectory_Lookup(t *testing.T) {
	users := &fakeUsers{users: map[string]*auth.UserRecord{
		"u1": {UserInfo: &auth.UserInfo{UID: "u1", DisplayName: "佐藤", Email: "sato@example.com"}},
	}}
	d := NewFirebaseDirectory(users)

	p, err := d.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "sato@example.com", p.Email)
	assert.Equal(t, "佐藤", p.DisplayName)

	_, err = d.Lookup(context.Background(), " ")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 1, users.calls)
}

func TestFirebaseDirectory_PropagatesBackendErrors(t *testing.T) {
	boom := errors.New("deadline exceeded")
	d := NewFirebaseDirectory(&fakeUsers{err: boom})
	_, err := d.Lookup(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory(Profile{UID: "s1", Email: "s1@example.com"})
	p, err := d.Lookup(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1@example.com", p.Email)

	_, err = d.Lookup(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	d.Put(Profile{UID: "b1", Email: "b1@example.com"})
	p, err = d.Lookup(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1@example.com", p.Email)
}
