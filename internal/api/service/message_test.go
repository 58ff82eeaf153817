package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edusphere/courseline/internal/domain"
)

const (
	learnerID      = "11111111-1111-4111-8111-111111111111"
	instructorID   = "22222222-2222-4222-8222-222222222222"
	outsiderID     = "33333333-3333-4333-8333-333333333333"
	courseID       = "44444444-4444-4444-8444-444444444444"
	conversationID = "55555555-5555-4555-8555-555555555555"
	messageID1     = "66666666-6666-4666-8666-666666666666"
	messageID2     = "77777777-7777-4777-8777-777777777777"
)

type stubTXManager struct {
	began int
}

func (m *stubTXManager) RunInTX(ctx context.Context, fn func(ctx context.Context) error) error {
	m.began++
	return fn(ctx)
}

type stubUserRepo struct {
	users map[string]*domain.User
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return u, nil
}

func (r *stubUserRepo) GetForToken(context.Context, []byte) (*domain.User, error) {
	return nil, domain.ErrRecordNotFound
}

type recordedMessage struct {
	conversationID  string
	preview         string
	senderIsLearner bool
}

type stubConvoRepo struct {
	upsertID    string
	upsertCalls [][3]string // courseID, learnerID, instructorID
	convos      map[string]*domain.Conversation
	locked      []string
	recorded    []recordedMessage
	zeroed      map[string]bool // conversationID -> readerIsLearner
}

func (r *stubConvoRepo) Upsert(_ context.Context, courseID, learnerID, instructorID string) (string, error) {
	r.upsertCalls = append(r.upsertCalls, [3]string{courseID, learnerID, instructorID})
	return r.upsertID, nil
}

func (r *stubConvoRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	c, ok := r.convos[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return c, nil
}

func (r *stubConvoRepo) GetForUser(_ context.Context, id, viewerID string) (*domain.Conversation, error) {
	c, ok := r.convos[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	view := *c
	counterpartID := c.InstructorID
	if viewerID == c.InstructorID {
		counterpartID = c.LearnerID
	}
	view.Counterpart = domain.Counterpart{ID: counterpartID, Name: "user " + counterpartID}
	return &view, nil
}

func (r *stubConvoRepo) List(context.Context, string, domain.ConversationFilter) ([]*domain.Conversation, int, error) {
	return nil, 0, nil
}

func (r *stubConvoRepo) Lock(_ context.Context, id string) error {
	r.locked = append(r.locked, id)
	return nil
}

func (r *stubConvoRepo) RecordMessage(_ context.Context, id, preview string, _ time.Time, senderIsLearner bool) error {
	r.recorded = append(r.recorded, recordedMessage{id, preview, senderIsLearner})
	return nil
}

func (r *stubConvoRepo) ZeroUnread(_ context.Context, id string, readerIsLearner bool) error {
	if r.zeroed == nil {
		r.zeroed = make(map[string]bool)
	}
	r.zeroed[id] = readerIsLearner
	return nil
}

func (r *stubConvoRepo) CounterpartIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

type readCall struct {
	conversationID, readerID string
	readAt                   time.Time
}

type stubMsgRepo struct {
	inserted   []*domain.Message
	page       []*domain.Message
	total      int
	lockable   []*domain.Message
	tombstoned [][]string
	hidden     map[string][]string // userID -> messageIDs
	reads      []readCall
}

func (r *stubMsgRepo) Insert(_ context.Context, m *domain.Message) error {
	r.inserted = append(r.inserted, m)
	return nil
}

func (r *stubMsgRepo) GetPage(context.Context, string, string, int, int) ([]*domain.Message, int, error) {
	return r.page, r.total, nil
}

func (r *stubMsgRepo) MarkConversationRead(_ context.Context, conversationID, readerID string, readAt time.Time) error {
	r.reads = append(r.reads, readCall{conversationID, readerID, readAt})
	return nil
}

func (r *stubMsgRepo) LockForDelete(_ context.Context, ids []string) ([]*domain.Message, error) {
	var out []*domain.Message
	for _, m := range r.lockable {
		for _, id := range ids {
			if m.ID == id {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (r *stubMsgRepo) TombstoneAll(_ context.Context, ids []string) error {
	r.tombstoned = append(r.tombstoned, ids)
	return nil
}

func (r *stubMsgRepo) HideAll(_ context.Context, ids []string, userID string) error {
	if r.hidden == nil {
		r.hidden = make(map[string][]string)
	}
	r.hidden[userID] = append(r.hidden[userID], ids...)
	return nil
}

func newTestService(msgRepo *stubMsgRepo, convoRepo *stubConvoRepo) *MessageService {
	users := &stubUserRepo{users: map[string]*domain.User{
		learnerID:    {ID: learnerID, Name: "Amira", Role: domain.RoleLearner},
		instructorID: {ID: instructorID, Name: "Tomasz", Role: domain.RoleInstructor},
		outsiderID:   {ID: outsiderID, Name: "Priya", Role: domain.RoleLearner},
	}}
	return NewMessageService(msgRepo, convoRepo, users, &stubTXManager{})
}

func learner() *domain.User {
	return &domain.User{ID: learnerID, Role: domain.RoleLearner}
}

func instructor() *domain.User {
	return &domain.User{ID: instructorID, Role: domain.RoleInstructor}
}

func TestSendResolvesVirtualConversationToCanonicalID(t *testing.T) {
	convoRepo := &stubConvoRepo{
		upsertID: conversationID,
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	msgRepo := &stubMsgRepo{}
	svc := newTestService(msgRepo, convoRepo)

	msg, convo, err := svc.Send(context.Background(), learner(), domain.SendMessagePayload{
		ReceiverID:     instructorID,
		ConversationID: nil, // virtual, no row exists yet
		CourseID:       courseID,
		Message:        domain.MessageDraft{Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ConversationID != conversationID {
		t.Fatalf("message bound to %q, want canonical id %q", msg.ConversationID, conversationID)
	}
	if convo.ID == nil || *convo.ID != conversationID {
		t.Fatalf("returned conversation id %v, want %q", convo.ID, conversationID)
	}
	if len(convoRepo.locked) != 1 || convoRepo.locked[0] != conversationID {
		t.Fatalf("expected row lock on %q, got %v", conversationID, convoRepo.locked)
	}
}

func TestSendConvergesBothDirectionsOnOneConversation(t *testing.T) {
	convoRepo := &stubConvoRepo{
		upsertID: conversationID,
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	msgRepo := &stubMsgRepo{}
	svc := newTestService(msgRepo, convoRepo)

	// both participants send into the virtual conversation concurrently,
	// neither knows the id yet
	if _, _, err := svc.Send(context.Background(), learner(), domain.SendMessagePayload{
		ReceiverID: instructorID, CourseID: courseID,
		Message: domain.MessageDraft{Content: "question"},
	}); err != nil {
		t.Fatalf("learner Send: %v", err)
	}
	if _, _, err := svc.Send(context.Background(), instructor(), domain.SendMessagePayload{
		ReceiverID: learnerID, CourseID: courseID,
		Message: domain.MessageDraft{Content: "answer"},
	}); err != nil {
		t.Fatalf("instructor Send: %v", err)
	}

	if len(convoRepo.upsertCalls) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(convoRepo.upsertCalls))
	}
	if convoRepo.upsertCalls[0] != convoRepo.upsertCalls[1] {
		t.Fatalf("upsert keys diverge: %v vs %v", convoRepo.upsertCalls[0], convoRepo.upsertCalls[1])
	}
	if msgRepo.inserted[0].ConversationID != msgRepo.inserted[1].ConversationID {
		t.Fatalf("messages landed in different conversations: %q vs %q",
			msgRepo.inserted[0].ConversationID, msgRepo.inserted[1].ConversationID)
	}
}

func TestSendBumpsOnlyCounterpartUnread(t *testing.T) {
	convoRepo := &stubConvoRepo{
		upsertID: conversationID,
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	msgRepo := &stubMsgRepo{}
	svc := newTestService(msgRepo, convoRepo)

	if _, _, err := svc.Send(context.Background(), instructor(), domain.SendMessagePayload{
		ReceiverID: learnerID, CourseID: courseID,
		Message: domain.MessageDraft{Content: "read chapter 3"},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(convoRepo.recorded) != 1 {
		t.Fatalf("expected 1 RecordMessage call, got %d", len(convoRepo.recorded))
	}
	if convoRepo.recorded[0].senderIsLearner {
		t.Fatal("instructor send recorded as learner send, the wrong unread counter would move")
	}
}

func TestSendRejectsSameRolePair(t *testing.T) {
	svc := newTestService(&stubMsgRepo{}, &stubConvoRepo{})
	_, _, err := svc.Send(context.Background(), learner(), domain.SendMessagePayload{
		ReceiverID: outsiderID, // another learner
		CourseID:   courseID,
		Message:    domain.MessageDraft{Content: "hey"},
	})
	var ev *domain.ErrValidation
	if !errors.As(err, &ev) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendRejectsOutsiderOnExistingConversation(t *testing.T) {
	convoRepo := &stubConvoRepo{
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: outsiderID, InstructorID: instructorID},
		},
	}
	svc := newTestService(&stubMsgRepo{}, convoRepo)
	_, _, err := svc.Send(context.Background(), learner(), domain.SendMessagePayload{
		ReceiverID:     instructorID,
		ConversationID: ptrTo(conversationID),
		CourseID:       courseID,
		Message:        domain.MessageDraft{Content: "hi"},
	})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestDeleteForEveryoneInsideWindow(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	msgRepo := &stubMsgRepo{
		lockable: []*domain.Message{
			{ID: messageID1, SenderID: learnerID, CreatedAt: base},
		},
	}
	svc := newTestService(msgRepo, &stubConvoRepo{})
	svc.now = func() time.Time { return base.Add(9*time.Minute + 59*time.Second) }

	if err := svc.Delete(context.Background(), learnerID, []string{messageID1}, domain.DeleteScopeEveryone); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(msgRepo.tombstoned) != 1 {
		t.Fatalf("expected 1 tombstone batch, got %d", len(msgRepo.tombstoned))
	}
}

func TestDeleteForEveryoneAfterWindowExpires(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	msgRepo := &stubMsgRepo{
		lockable: []*domain.Message{
			{ID: messageID1, SenderID: learnerID, CreatedAt: base},
		},
	}
	svc := newTestService(msgRepo, &stubConvoRepo{})
	svc.now = func() time.Time { return base.Add(10*time.Minute + time.Second) }

	err := svc.Delete(context.Background(), learnerID, []string{messageID1}, domain.DeleteScopeEveryone)
	if !errors.Is(err, domain.ErrWindowExpired) {
		t.Fatalf("expected ErrWindowExpired, got %v", err)
	}
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("window expiry should unwrap to ErrPermissionDenied, got %v", err)
	}
	if len(msgRepo.tombstoned) != 0 {
		t.Fatal("expired delete must not tombstone anything")
	}
}

func TestDeleteReplayOnTombstonesPassesPastWindow(t *testing.T) {
	// the post-delete room notification replays the batch through the
	// store, an hour-old tombstone must not flip that replay into a
	// window rejection
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	msgRepo := &stubMsgRepo{
		lockable: []*domain.Message{
			{ID: messageID1, SenderID: learnerID, CreatedAt: base, IsDeletedForEveryone: true},
		},
	}
	svc := newTestService(msgRepo, &stubConvoRepo{})
	svc.now = func() time.Time { return base.Add(time.Hour) }

	if err := svc.Delete(context.Background(), learnerID, []string{messageID1}, domain.DeleteScopeEveryone); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(msgRepo.tombstoned) != 1 {
		t.Fatalf("expected the replay to re-tombstone, got %d batches", len(msgRepo.tombstoned))
	}
}

func TestDeleteReplayStillRejectsAnotherSendersTombstone(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	msgRepo := &stubMsgRepo{
		lockable: []*domain.Message{
			{ID: messageID1, SenderID: instructorID, CreatedAt: base, IsDeletedForEveryone: true},
		},
	}
	svc := newTestService(msgRepo, &stubConvoRepo{})
	svc.now = func() time.Time { return base.Add(time.Minute) }

	err := svc.Delete(context.Background(), learnerID, []string{messageID1}, domain.DeleteScopeEveryone)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(msgRepo.tombstoned) != 0 {
		t.Fatal("a foreign tombstone must not be re-tombstoned")
	}
}

func TestDeleteBatchIsAllOrNothing(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	msgRepo := &stubMsgRepo{
		lockable: []*domain.Message{
			{ID: messageID1, SenderID: learnerID, CreatedAt: base},
			{ID: messageID2, SenderID: instructorID, CreatedAt: base}, // not the requester's
		},
	}
	svc := newTestService(msgRepo, &stubConvoRepo{})
	svc.now = func() time.Time { return base.Add(time.Minute) }

	err := svc.Delete(context.Background(), learnerID, []string{messageID1, messageID2}, domain.DeleteScopeEveryone)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(msgRepo.tombstoned) != 0 {
		t.Fatal("one bad message must reject the whole batch untouched")
	}
}

func TestDeleteForMeOnlyHides(t *testing.T) {
	msgRepo := &stubMsgRepo{}
	svc := newTestService(msgRepo, &stubConvoRepo{})

	if err := svc.Delete(context.Background(), learnerID, []string{messageID1}, domain.DeleteScopeMe); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := msgRepo.hidden[learnerID]; len(got) != 1 || got[0] != messageID1 {
		t.Fatalf("expected %q hidden for requester, got %v", messageID1, got)
	}
	if len(msgRepo.tombstoned) != 0 {
		t.Fatal("delete-for-me must never tombstone, the counterpart keeps the message")
	}
}

func TestMarkReadZeroesReadersOwnCounter(t *testing.T) {
	convoRepo := &stubConvoRepo{
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	msgRepo := &stubMsgRepo{}
	svc := newTestService(msgRepo, convoRepo)
	at := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	readAt, err := svc.MarkRead(context.Background(), conversationID, learnerID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !readAt.Equal(at) {
		t.Fatalf("readAt %v, want %v", readAt, at)
	}
	readerIsLearner, ok := convoRepo.zeroed[conversationID]
	if !ok || !readerIsLearner {
		t.Fatalf("expected learner counter zeroed, got %v", convoRepo.zeroed)
	}
	if len(msgRepo.reads) != 1 || msgRepo.reads[0].readerID != learnerID {
		t.Fatalf("expected one read flip by %q, got %v", learnerID, msgRepo.reads)
	}
}

func TestMarkReadRejectsNonParticipant(t *testing.T) {
	convoRepo := &stubConvoRepo{
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	svc := newTestService(&stubMsgRepo{}, convoRepo)

	if _, err := svc.MarkRead(context.Background(), conversationID, outsiderID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestFetchMessagesReturnsAscendingWithHasMore(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	newest := &domain.Message{ID: messageID2, CreatedAt: base.Add(time.Minute)}
	oldest := &domain.Message{ID: messageID1, CreatedAt: base}
	convoRepo := &stubConvoRepo{
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	msgRepo := &stubMsgRepo{page: []*domain.Message{newest, oldest}, total: 5}
	svc := newTestService(msgRepo, convoRepo)

	page, err := svc.FetchMessages(context.Background(), learnerID, conversationID, 0, 2)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if page.Messages[0] != oldest || page.Messages[1] != newest {
		t.Fatal("messages not in ascending createdAt order")
	}
	if !page.HasMore {
		t.Fatal("expected hasMore with 5 total and 2 loaded")
	}
}

func TestFetchMessagesRejectsNonParticipant(t *testing.T) {
	convoRepo := &stubConvoRepo{
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	svc := newTestService(&stubMsgRepo{}, convoRepo)

	if _, err := svc.FetchMessages(context.Background(), outsiderID, conversationID, 0, 10); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestSendUsesAttachmentNameAsPreview(t *testing.T) {
	convoRepo := &stubConvoRepo{
		upsertID: conversationID,
		convos: map[string]*domain.Conversation{
			conversationID: {ID: ptrTo(conversationID), LearnerID: learnerID, InstructorID: instructorID},
		},
	}
	msgRepo := &stubMsgRepo{}
	svc := newTestService(msgRepo, convoRepo)

	if _, _, err := svc.Send(context.Background(), learner(), domain.SendMessagePayload{
		ReceiverID: instructorID, CourseID: courseID,
		Message: domain.MessageDraft{
			Attachments: []domain.Attachment{{FileName: "assignment.pdf", FileURL: "attachments/a/assignment.pdf"}},
		},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if convoRepo.recorded[0].preview != "assignment.pdf" {
		t.Fatalf("preview %q, want attachment file name", convoRepo.recorded[0].preview)
	}
}

func ptrTo[T any](v T) *T {
	return &v
}
