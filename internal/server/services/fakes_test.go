package services

import (
	"cmp"
	"context"
	"database/sql"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/cryptox"
	"github.com/dmitrijs2005/sealchat/internal/dbx"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/chatgroups"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/friendships"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/keypairs"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// testKeyPair is generated once per test binary; RSA generation is slow.
var testKeyPair = sync.OnceValues(func() ([2]string, error) {
	pub, priv, err := cryptox.GenerateKeyPair()
	return [2]string{pub, priv}, err
})

// stubKeyGeneration makes generateKeyPair return the shared test pair and
// counts calls.
func stubKeyGeneration(t *testing.T) *int {
	t.Helper()
	kp, err := testKeyPair()
	require.NoError(t, err)

	calls := 0
	old := generateKeyPair
	generateKeyPair = func() (string, string, error) {
		calls++
		return kp[0], kp[1], nil
	}
	t.Cleanup(func() { generateKeyPair = old })
	return &calls
}

func newTestCipher(t *testing.T) *cryptox.SymmetricCipher {
	t.Helper()
	key, err := cryptox.GenerateSymmetricKey()
	require.NoError(t, err)
	c, err := cryptox.NewSymmetricCipher(key, 0)
	require.NoError(t, err)
	return c
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// fakeStore is an in-memory stand-in for every repository. The err fields
// make the matching repository fail.
type fakeStore struct {
	mu sync.Mutex

	users      map[int64]*models.User
	keyPairs   map[int64]*models.KeyPair
	friendship map[[2]int64]string
	messages   map[int64]*models.Message
	tokens     map[string]*models.RefreshToken
	groups     map[int64]*models.ChatGroup
	groupMsgs  []*models.GroupMessage
	nextID     int64

	usersErr    error
	keyPairsErr error
	friendsErr  error
	messagesErr error
	tokensErr   error
	groupsErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[int64]*models.User{},
		keyPairs:   map[int64]*models.KeyPair{},
		friendship: map[[2]int64]string{},
		messages:   map[int64]*models.Message{},
		tokens:     map[string]*models.RefreshToken{},
		groups:     map[int64]*models.ChatGroup{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addUser(name string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: f.id(), UserName: name}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) befriend(a, b int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendship[[2]int64{a, b}] = models.FriendshipAccepted
}

func (f *fakeStore) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (f *fakeStore) Users(dbx.DBTX) users.Repository                 { return fakeUsers{f} }
func (f *fakeStore) KeyPairs(dbx.DBTX) keypairs.Repository           { return fakeKeyPairs{f} }
func (f *fakeStore) Friendships(dbx.DBTX) friendships.Repository     { return fakeFriendships{f} }
func (f *fakeStore) Messages(dbx.DBTX) messages.Repository           { return fakeMessages{f} }
func (f *fakeStore) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return fakeRefreshTokens{f} }
func (f *fakeStore) ChatGroups(dbx.DBTX) chatgroups.Repository       { return fakeChatGroups{f} }

type fakeUsers struct{ *fakeStore }

func (r fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usersErr != nil {
		return nil, r.usersErr
	}
	for _, existing := range r.users {
		if existing.UserName == u.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.ID = r.id()
	cp.CreatedAt = time.Now()
	r.users[cp.ID] = &cp
	return &cp, nil
}

func (r fakeUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usersErr != nil {
		return nil, r.usersErr
	}
	for _, u := range r.users {
		if u.UserName == login {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usersErr != nil {
		return nil, r.usersErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeKeyPairs struct{ *fakeStore }

func (r fakeKeyPairs) Get(_ context.Context, userID int64) (*models.KeyPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyPairsErr != nil {
		return nil, r.keyPairsErr
	}
	kp, ok := r.keyPairs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *kp
	return &cp, nil
}

func (r fakeKeyPairs) StoreIfMissing(_ context.Context, kp *models.KeyPair) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyPairsErr != nil {
		return false, r.keyPairsErr
	}
	if existing, ok := r.keyPairs[kp.UserID]; ok && existing.Complete() {
		return false, nil
	}
	cp := *kp
	r.keyPairs[kp.UserID] = &cp
	return true, nil
}

type fakeFriendships struct{ *fakeStore }

func (r fakeFriendships) AreFriends(_ context.Context, a, b int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.friendsErr != nil {
		return false, r.friendsErr
	}
	return r.friendship[[2]int64{a, b}] == models.FriendshipAccepted ||
		r.friendship[[2]int64{b, a}] == models.FriendshipAccepted, nil
}

func (r fakeFriendships) Request(_ context.Context, senderID, receiverID int64) (*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.friendsErr != nil {
		return nil, r.friendsErr
	}
	k := [2]int64{senderID, receiverID}
	if _, ok := r.friendship[k]; ok {
		return nil, common.ErrorAlreadyExists
	}
	r.friendship[k] = models.FriendshipPending
	return &models.Friendship{ID: r.id(), SenderID: senderID, ReceiverID: receiverID, Status: models.FriendshipPending}, nil
}

func (r fakeFriendships) Respond(_ context.Context, senderID, receiverID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.friendsErr != nil {
		return r.friendsErr
	}
	k := [2]int64{senderID, receiverID}
	if r.friendship[k] != models.FriendshipPending {
		return common.ErrorNotFound
	}
	r.friendship[k] = status
	return nil
}

func (r fakeFriendships) ListForUser(_ context.Context, userID int64) ([]*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.friendsErr != nil {
		return nil, r.friendsErr
	}
	var out []*models.Friendship
	for k, status := range r.friendship {
		if k[0] != userID && k[1] != userID {
			continue
		}
		out = append(out, &models.Friendship{
			SenderID:         k[0],
			SenderUsername:   r.users[k[0]].UserName,
			ReceiverID:       k[1],
			ReceiverUsername: r.users[k[1]].UserName,
			Status:           status,
		})
	}
	slices.SortFunc(out, func(a, b *models.Friendship) int {
		return cmp.Or(cmp.Compare(a.SenderID, b.SenderID), cmp.Compare(a.ReceiverID, b.ReceiverID))
	})
	return out, nil
}

type fakeMessages struct{ *fakeStore }

func (r fakeMessages) Create(_ context.Context, m *models.Message) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messagesErr != nil {
		return nil, r.messagesErr
	}
	cp := *m
	cp.ID = r.id()
	cp.Timestamp = time.Date(2024, 5, 1, 12, 0, 0, int(cp.ID)*1000, time.UTC)
	r.messages[cp.ID] = &cp
	return &cp, nil
}

func (r fakeMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messagesErr != nil {
		return nil, r.messagesErr
	}
	m, ok := r.messages[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.withNames(m), nil
}

func (r fakeMessages) ListConversation(_ context.Context, a, b int64) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messagesErr != nil {
		return nil, r.messagesErr
	}
	var out []*models.Message
	for id := int64(1); id <= r.nextID; id++ {
		m, ok := r.messages[id]
		if !ok {
			continue
		}
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, r.withNames(m))
		}
	}
	return out, nil
}

func (r fakeMessages) ListForUser(_ context.Context, userID int64) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messagesErr != nil {
		return nil, r.messagesErr
	}
	var out []*models.Message
	for id := r.nextID; id >= 1; id-- {
		if m, ok := r.messages[id]; ok && m.Involves(userID) {
			out = append(out, r.withNames(m))
		}
	}
	return out, nil
}

func (r fakeMessages) withNames(m *models.Message) *models.Message {
	cp := *m
	if u, ok := r.users[m.SenderID]; ok {
		cp.SenderUsername = u.UserName
	}
	if u, ok := r.users[m.ReceiverID]; ok {
		cp.ReceiverUsername = u.UserName
	}
	return &cp
}

type fakeRefreshTokens struct{ *fakeStore }

func (r fakeRefreshTokens) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokensErr != nil {
		return r.tokensErr
	}
	r.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (r fakeRefreshTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokensErr != nil {
		return nil, r.tokensErr
	}
	t, ok := r.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (r fakeRefreshTokens) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokensErr != nil {
		return r.tokensErr
	}
	delete(r.tokens, token)
	return nil
}

func (r fakeRefreshTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokensErr != nil {
		return 0, r.tokensErr
	}
	var n int64
	for k, t := range r.tokens {
		if t.Expires.Before(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

type fakeChatGroups struct{ *fakeStore }

func (r fakeChatGroups) Create(_ context.Context, g *models.ChatGroup) (*models.ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return nil, r.groupsErr
	}
	cp := *g
	cp.ID = r.id()
	cp.CreatedAt = time.Now()
	r.groups[cp.ID] = &cp
	return &cp, nil
}

func (r fakeChatGroups) AddMember(_ context.Context, groupID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return r.groupsErr
	}
	g, ok := r.groups[groupID]
	if !ok || r.users[userID] == nil {
		return common.ErrorNotFound
	}
	if !g.HasMember(userID) {
		g.MemberIDs = append(g.MemberIDs, userID)
		slices.Sort(g.MemberIDs)
	}
	return nil
}

func (r fakeChatGroups) GetByID(_ context.Context, id int64) (*models.ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return nil, r.groupsErr
	}
	g, ok := r.groups[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *g
	cp.MemberIDs = slices.Clone(g.MemberIDs)
	return &cp, nil
}

func (r fakeChatGroups) ListForUser(_ context.Context, userID int64) ([]*models.ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return nil, r.groupsErr
	}
	var out []*models.ChatGroup
	for _, g := range r.groups {
		if g.HasMember(userID) {
			cp := *g
			cp.MemberIDs = slices.Clone(g.MemberIDs)
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.ChatGroup) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (r fakeChatGroups) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return false, r.groupsErr
	}
	g, ok := r.groups[groupID]
	return ok && g.HasMember(userID), nil
}

func (r fakeChatGroups) CreateMessage(_ context.Context, m *models.GroupMessage) (*models.GroupMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return nil, r.groupsErr
	}
	cp := *m
	cp.ID = r.id()
	cp.Timestamp = time.Now()
	if u := r.users[cp.SenderID]; u != nil {
		cp.SenderUsername = u.UserName
	}
	r.groupMsgs = append(r.groupMsgs, &cp)
	return &cp, nil
}

func (r fakeChatGroups) ListMessages(_ context.Context, groupID int64) ([]*models.GroupMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupsErr != nil {
		return nil, r.groupsErr
	}
	var out []*models.GroupMessage
	for _, m := range r.groupMsgs {
		if m.GroupID == groupID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}
