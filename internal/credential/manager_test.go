// ABOUTME: Tests for credential changes
// ABOUTME: Covers validation order, control checks, commit, audit and notification

package credential

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/resolve"
	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

type countingStore struct {
	*store.MockStore
	mu         sync.Mutex
	searches   int
	failUpdate error
}

func (c *countingStore) UpdateActorPassword(ctx context.Context, id int64, hash string) error {
	if c.failUpdate != nil {
		return c.failUpdate
	}
	return c.MockStore.UpdateActorPassword(ctx, id, hash)
}

func (c *countingStore) SearchActors(ctx context.Context, q string) ([]*store.Actor, error) {
	c.mu.Lock()
	c.searches++
	c.mu.Unlock()
	return c.MockStore.SearchActors(ctx, q)
}

type recordingConn struct {
	mu   sync.Mutex
	sent []string
}

func (c *recordingConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}
func (c *recordingConn) Close() error         { return nil }
func (c *recordingConn) RemoteAddr() net.Addr { return &net.TCPAddr{Port: 1234} }

type fixture struct {
	store   *countingStore
	dir     *session.Directory
	mgr     *Manager
	admin   *store.Actor
	player  *store.Actor
	wizard  *store.Actor
	peer    *store.Actor
	object  *store.Actor
	conn    *recordingConn
	hashErr error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	cs := &countingStore{MockStore: store.NewMockStore()}

	mk := func(a *store.Actor) *store.Actor {
		require.NoError(t, cs.CreateActor(ctx, a))
		return a
	}

	f := &fixture{store: cs, dir: session.NewDirectory(nil), conn: &recordingConn{}}
	f.admin = mk(&store.Actor{Name: "Admin", Player: true, Rank: 5, Capabilities: auth.NewCapabilitySet(auth.ManagePlayers)})
	f.player = mk(&store.Actor{Name: "Player", Player: true, Rank: 1})
	f.wizard = mk(&store.Actor{Name: "Wizard", Player: true, Superuser: true})
	f.peer = mk(&store.Actor{Name: "Peer", Player: true, Rank: 5})
	f.object = mk(&store.Actor{Name: "Statue", Player: false})

	sess := f.dir.Add(f.conn, "telnet")
	require.NoError(t, f.dir.Bind(sess, f.player.ID))

	f.mgr = NewManager(resolve.New(cs, f.dir), cs, f.dir, nil).WithHasher(func(p string) (string, error) {
		if f.hashErr != nil {
			return "", f.hashErr
		}
		return "hashed:" + p, nil
	})
	return f
}

func (f *fixture) storedHash(t *testing.T, id int64) string {
	t.Helper()
	a, err := f.store.GetActor(context.Background(), id)
	require.NoError(t, err)
	return a.PasswordHash
}

func TestSetCredential_Success(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.SetCredential(context.Background(), f.admin, "player", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, f.player.ID, out.Target.ID)
	assert.Equal(t, 1, out.Notified)
	assert.Equal(t, "hashed:s3cret", f.storedHash(t, f.player.ID))
	assert.Equal(t, []string{"Admin has changed your password."}, f.conn.sent)

	entries, err := f.store.ListAuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditSetCredential, entries[0].Action)
	assert.Equal(t, f.player.Ref(), entries[0].TargetID)
}

func TestSetCredential_ValidationBeforeLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.SetCredential(ctx, f.admin, "  ", "pw")
	assert.ErrorIs(t, err, ErrMissingTarget)

	_, err = f.mgr.SetCredential(ctx, f.admin, "player", "")
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = f.mgr.SetCredential(ctx, f.admin, "player", strings.Repeat("x", MaxCredentialBytes+1))
	assert.ErrorIs(t, err, ErrCredentialTooLong)

	assert.Zero(t, f.store.searches, "no lookup for invalid input")
	assert.Empty(t, f.storedHash(t, f.player.ID))
}

func TestSetCredential_Refusals(t *testing.T) {
	tests := []struct {
		name    string
		invoker func(*fixture) *store.Actor
		target  string
		wantErr error
	}{
		{"not a player", func(f *fixture) *store.Actor { return f.admin }, "statue", ErrNotAuthenticatable},
		{"superuser target", func(f *fixture) *store.Actor { return f.admin }, "wizard", ErrSuperuserShielded},
		{"superuser target even for superuser", func(f *fixture) *store.Actor { return f.wizard }, "wizard", ErrSuperuserShielded},
		{"equal rank", func(f *fixture) *store.Actor { return f.admin }, "peer", ErrNotControlled},
		{"lower rank", func(f *fixture) *store.Actor { return f.player }, "admin", ErrNotControlled},
		{"no match", func(f *fixture) *store.Actor { return f.admin }, "nobody", resolve.ErrNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.SetCredential(context.Background(), tt.invoker(f), tt.target, "pw")
			assert.ErrorIs(t, err, tt.wantErr)

			for _, a := range []*store.Actor{f.admin, f.player, f.wizard, f.peer, f.object} {
				assert.Empty(t, f.storedHash(t, a.ID), "no credential may change on refusal")
			}
			assert.Empty(t, f.conn.sent)
		})
	}
}

func TestSetCredential_Ambiguous(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateActor(context.Background(), &store.Actor{Name: "Playwright", Player: true}))

	_, err := f.mgr.SetCredential(context.Background(), f.admin, "pla", "pw")
	var amb *resolve.AmbiguousError
	assert.True(t, errors.As(err, &amb))
}

func TestSetCredential_SelfDoesNotNotify(t *testing.T) {
	f := newFixture(t)

	out, err := f.mgr.SetCredential(context.Background(), f.player, "player", "mine")
	require.NoError(t, err)
	assert.Zero(t, out.Notified)
	assert.Empty(t, f.conn.sent)
	assert.Equal(t, "hashed:mine", f.storedHash(t, f.player.ID))
}

func TestSetCredential_HashFailure(t *testing.T) {
	f := newFixture(t)
	f.hashErr = errors.New("entropy exhausted")

	_, err := f.mgr.SetCredential(context.Background(), f.admin, "player", "pw")
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorContains(t, err, "entropy exhausted")
	assert.Empty(t, f.storedHash(t, f.player.ID))
}

func TestSetCredential_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failUpdate = errors.New("disk full")

	_, err := f.mgr.SetCredential(context.Background(), f.admin, "player", "pw")
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, f.conn.sent)

	entries, err := f.store.ListAuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSetCredential_MaxLengthAccepted(t *testing.T) {
	f := newFixture(t)
	pw := strings.Repeat("x", MaxCredentialBytes)

	_, err := f.mgr.SetCredential(context.Background(), f.admin, "player", pw)
	require.NoError(t, err)
	assert.Equal(t, "hashed:"+pw, f.storedHash(t, f.player.ID))
}

func TestSetCredential_AuditFailureDoesNotUndoCommit(t *testing.T) {
	f := newFixture(t)
	f.store.FailAudit = errors.New("audit down")

	_, err := f.mgr.SetCredential(context.Background(), f.admin, "player", "pw")
	require.NoError(t, err)
	assert.Equal(t, "hashed:pw", f.storedHash(t, f.player.ID))
}

func TestNewManager_UsesBcrypt(t *testing.T) {
	ms := store.NewMockStore()
	ctx := context.Background()
	admin := &store.Actor{Name: "Admin", Player: true, Superuser: true}
	target := &store.Actor{Name: "Target", Player: true}
	require.NoError(t, ms.CreateActor(ctx, admin))
	require.NoError(t, ms.CreateActor(ctx, target))

	dir := session.NewDirectory(nil)
	mgr := NewManager(resolve.New(ms, dir), ms, dir, nil)

	_, err := mgr.SetCredential(ctx, admin, "target", "correct horse")
	require.NoError(t, err)

	stored, err := ms.GetActor(ctx, target.ID)
	require.NoError(t, err)
	assert.NoError(t, auth.CheckPassword(stored.PasswordHash, "correct horse"))
}
