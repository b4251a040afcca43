package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/server/auth"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/services"
)

type fakeUsers struct {
	registerErr error
	loginErr    error
	refreshErr  error

	mu        sync.Mutex
	lastLogin string
	refreshed string
	loggedOut []string
}

func (f *fakeUsers) Register(_ context.Context, username, email, _ string) (*models.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &models.User{ID: 10, UserName: username, Email: email}, nil
}

func (f *fakeUsers) Login(_ context.Context, username, _ string) (*services.TokenPair, error) {
	f.mu.Lock()
	f.lastLogin = username
	f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.TokenPair{AccessToken: "access-" + username, RefreshToken: "refresh-" + username}, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, tok string) (*services.TokenPair, error) {
	f.mu.Lock()
	f.refreshed = tok
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access-new", RefreshToken: "refresh-new"}, nil
}

func (f *fakeUsers) Logout(_ context.Context, tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, tok)
	return nil
}

type fakeMessages struct {
	sendErr       error
	lastSend      services.SendRequest
	views         []*services.MessageView
	listErr       error
	attachment    *services.Attachment
	attachmentErr error
	lastRequester int64
	lastID        int64
}

func (f *fakeMessages) Send(_ context.Context, req services.SendRequest) (*services.ChatMessage, error) {
	f.lastSend = req
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	text, _ := req.Content.Value()
	return &services.ChatMessage{ID: 1, SenderID: req.SenderID, ReceiverID: req.ReceiverID, Content: text}, nil
}

func (f *fakeMessages) Conversation(_ context.Context, requester, other int64) ([]*services.MessageView, error) {
	f.lastRequester, f.lastID = requester, other
	return f.views, f.listErr
}

func (f *fakeMessages) Inbox(_ context.Context, requester int64) ([]*services.MessageView, error) {
	f.lastRequester = requester
	return f.views, f.listErr
}

func (f *fakeMessages) Get(_ context.Context, requester, id int64) (*services.MessageView, error) {
	f.lastRequester, f.lastID = requester, id
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.views) == 0 {
		return nil, common.ErrorNotFound
	}
	return f.views[0], nil
}

func (f *fakeMessages) Attachment(_ context.Context, requester, id int64) (*services.Attachment, error) {
	f.lastRequester, f.lastID = requester, id
	return f.attachment, f.attachmentErr
}

func (f *fakeMessages) MaxMessageLength() int { return 5000 }

type friendCall struct {
	op    string
	self  int64
	other int64
}

type fakeFriends struct {
	err   error
	calls []friendCall
	list  []*models.Friendship
}

func (f *fakeFriends) Request(_ context.Context, senderID, receiverID int64) (*models.Friendship, error) {
	f.calls = append(f.calls, friendCall{"request", senderID, receiverID})
	if f.err != nil {
		return nil, f.err
	}
	return &models.Friendship{ID: 5, SenderID: senderID, ReceiverID: receiverID, Status: models.FriendshipPending}, nil
}

func (f *fakeFriends) Accept(_ context.Context, receiverID, requesterID int64) error {
	f.calls = append(f.calls, friendCall{"accept", receiverID, requesterID})
	return f.err
}

func (f *fakeFriends) Reject(_ context.Context, receiverID, requesterID int64) error {
	f.calls = append(f.calls, friendCall{"reject", receiverID, requesterID})
	return f.err
}

func (f *fakeFriends) List(_ context.Context, userID int64) ([]*models.Friendship, error) {
	f.calls = append(f.calls, friendCall{"list", userID, 0})
	return f.list, f.err
}

type fakeGroups struct {
	err      error
	group    *services.GroupView
	messages []*services.GroupMessageView

	created     *createGroupRequest
	creator     int64
	lastSend    services.GroupSendRequest
	requester   int64
	requestedID int64
}

func (f *fakeGroups) Create(_ context.Context, creatorID int64, name string, memberIDs []int64) (*services.GroupView, error) {
	f.creator = creatorID
	f.created = &createGroupRequest{Name: name, Members: memberIDs}
	if f.err != nil {
		return nil, f.err
	}
	return &services.GroupView{ID: 7, Name: name, Members: append([]int64{creatorID}, memberIDs...), CreatedBy: creatorID, MembersCount: 1 + len(memberIDs)}, nil
}

func (f *fakeGroups) List(_ context.Context, requester int64) ([]*services.GroupView, error) {
	f.requester = requester
	if f.err != nil {
		return nil, f.err
	}
	if f.group == nil {
		return []*services.GroupView{}, nil
	}
	return []*services.GroupView{f.group}, nil
}

func (f *fakeGroups) Get(_ context.Context, requester, id int64) (*services.GroupView, error) {
	f.requester, f.requestedID = requester, id
	if f.err != nil {
		return nil, f.err
	}
	if f.group == nil {
		return nil, common.ErrorNotFound
	}
	return f.group, nil
}

func (f *fakeGroups) Send(_ context.Context, req services.GroupSendRequest) (*services.GroupMessageView, error) {
	f.lastSend = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.GroupMessageView{ID: 1, GroupID: req.GroupID, SenderID: req.SenderID, SenderUsername: req.SenderUsername, DecryptedContent: req.Text}, nil
}

func (f *fakeGroups) Messages(_ context.Context, requester, id int64) ([]*services.GroupMessageView, error) {
	f.requester, f.requestedID = requester, id
	return f.messages, f.err
}

// cookieResolver maps the access_token cookie value to a fixed identity.
type cookieResolver map[string]auth.Identity

func (r cookieResolver) Resolve(_ context.Context, req *http.Request) auth.Identity {
	return r[auth.TokenFromRequest(req)]
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }
