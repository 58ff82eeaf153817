package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/edusphere/courseline/internal/client/repository"
	csync "github.com/edusphere/courseline/internal/client/sync"
	"github.com/edusphere/courseline/internal/common"
	"github.com/edusphere/courseline/internal/domain"
)

var (
	once   sync.Once
	client *Client
)

type Convos []*domain.Conversation

type ConvosBroadcaster = csync.Broadcaster[Convos]

type TypingBroadcaster = csync.Broadcaster[domain.UserTypingPayload]

type Client struct {
	AuthToken  string // if zero valued -> requires login
	CurrentUsr *domain.User
	krm        *keyringManager
	repo       *repository.LocalRepository
	storage    AttachmentStorage
	filesDir   string
	BT         *common.BackgroundTask

	WsConnState   *WsConnMonitor
	Conversations *ConvosBroadcaster
	Typing        *TypingBroadcaster

	chat   *chatState
	drafts *draftState

	// out is drained by the single connection writer, nothing else
	// touches the websocket write side
	out chan *domain.Event

	acksMu      sync.Mutex
	pendingAcks map[string]chan *domain.SendMessageResponse
}

func Init(filesDir string, storage AttachmentStorage) error {
	var c Client
	var err error
	once.Do(func() {
		c.krm, err = newKeyringManager()
		if err != nil {
			return
		}
		// ignoring the error, we'll determine if the item is not found using zero value of Client.AuthToken
		c.AuthToken = c.krm.getAuthTokenFromKeyring()
		var db *repository.DB
		if db, err = repository.OpenDB(filesDir); err != nil {
			return
		}
		if err = db.RunMigrations(); err != nil {
			return
		}
		c.repo = repository.NewLocalRepository(db)
		c.storage = storage
		c.filesDir = filesDir
		c.BT = common.NewBackgroundTask()
		c.WsConnState = newWsConnMonitor()
		c.Conversations = csync.NewBroadcaster[Convos]()
		c.Typing = csync.NewBroadcaster[domain.UserTypingPayload]()
		c.chat = newChatState()
		c.drafts = newDraftState()
		c.out = make(chan *domain.Event, 16)
		c.pendingAcks = make(map[string]chan *domain.SendMessageResponse)
	})
	if err != nil {
		return err
	}
	client = &c
	return nil
}

func Get() *Client {
	return client
}

// Run starts the long-running loops, the connection manager and the
// broadcasters. It returns once all of them exit after shutdown.
func (c *Client) Run() {
	c.BT.Run(func(shtdwnCtx context.Context) { c.WsConnState.Broadcast(shtdwnCtx) })
	c.BT.Run(func(shtdwnCtx context.Context) { c.Conversations.Broadcast(shtdwnCtx) })
	c.BT.Run(func(shtdwnCtx context.Context) { c.Typing.Broadcast(shtdwnCtx) })
	c.BT.Run(func(shtdwnCtx context.Context) { c.populateConversationsAccordingToWsConnState(shtdwnCtx) })
	c.BT.Run(func(shtdwnCtx context.Context) { c.maintainWsConnection(shtdwnCtx) })
}

func (c *Client) LoggedIn() bool {
	return c.AuthToken != ""
}

// Login adopts the token handed out by the account collaborator,
// verifies it against the server and persists it in the keyring so the
// next start skips the login screen.
func (c *Client) Login(token string) error {
	c.AuthToken = token
	if err := c.ensureCurrentUser(); err != nil {
		c.AuthToken = ""
		return err
	}
	return c.krm.setAuthTokenInKeyring(c.CurrentUsr.Name, token)
}

// Logout drops the token and the local cache, the next login starts
// from a clean database.
func (c *Client) Logout() error {
	c.AuthToken = ""
	c.CurrentUsr = nil
	if err := repository.DeleteDBFile(c.filesDir); err != nil {
		slog.Error(err.Error())
	}
	return c.krm.removeAuthTokenFromKeyring()
}

func ptr[T any](v T) *T {
	return &v
}
