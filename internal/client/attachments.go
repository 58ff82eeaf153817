package client

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/edusphere/courseline/internal/domain"
	"github.com/google/uuid"
)

const uploadTimeout = 30 * time.Second

// StagedFile is a draft attachment parked on a conversation. Nothing is
// uploaded at staging time, the file goes up when the draft is sent.
type StagedFile struct {
	ID       string
	FileName string
	FileType string
	FileSize int64
	file     io.ReadSeeker
}

// draftState holds staged files keyed by conversation. The stage
// survives every failed send so a retry re-sends the same draft.
type draftState struct {
	mu     sync.Mutex
	staged map[string][]*StagedFile
}

func newDraftState() *draftState {
	return &draftState{staged: make(map[string][]*StagedFile)}
}

// draftKey identifies a conversation before and after it has an id.
func draftKey(convo *domain.Conversation) string {
	if convo.ID != nil {
		return *convo.ID
	}
	return convo.Course.ID + "/" + convo.Counterpart.ID
}

// StageAttachment parks the file on the open conversation's draft. The
// reader is held until send time, it must stay valid that long.
func (c *Client) StageAttachment(fileName, fileType string, size int64, file io.ReadSeeker) (*StagedFile, error) {
	c.chat.mu.Lock()
	convo := c.chat.conversation
	c.chat.mu.Unlock()
	if convo == nil {
		return nil, ErrApplication
	}
	sf := &StagedFile{
		ID:       uuid.New().String(),
		FileName: fileName,
		FileType: fileType,
		FileSize: size,
		file:     file,
	}
	key := draftKey(convo)
	c.drafts.mu.Lock()
	c.drafts.staged[key] = append(c.drafts.staged[key], sf)
	c.drafts.mu.Unlock()
	return sf, nil
}

func (c *Client) StagedAttachments() []*StagedFile {
	c.chat.mu.Lock()
	convo := c.chat.conversation
	c.chat.mu.Unlock()
	if convo == nil {
		return nil
	}
	c.drafts.mu.Lock()
	defer c.drafts.mu.Unlock()
	return slices.Clone(c.drafts.staged[draftKey(convo)])
}

func (c *Client) DiscardStagedAttachment(id string) {
	c.chat.mu.Lock()
	convo := c.chat.conversation
	c.chat.mu.Unlock()
	if convo == nil {
		return
	}
	key := draftKey(convo)
	c.drafts.mu.Lock()
	c.drafts.staged[key] = slices.DeleteFunc(c.drafts.staged[key], func(sf *StagedFile) bool {
		return sf.ID == id
	})
	c.drafts.mu.Unlock()
}

// SendDraft uploads every staged file, then sends the composed content
// with the resolved attachment descriptors. The stage clears only on a
// successful ack, a failed upload or send keeps the whole draft ready
// to retry.
func (c *Client) SendDraft(ctx context.Context, content string) (*domain.Message, error) {
	c.chat.mu.Lock()
	convo := c.chat.conversation
	c.chat.mu.Unlock()
	if convo == nil {
		return nil, ErrApplication
	}
	key := draftKey(convo)
	c.drafts.mu.Lock()
	staged := slices.Clone(c.drafts.staged[key])
	c.drafts.mu.Unlock()

	attachments := make([]domain.Attachment, 0, len(staged))
	for _, sf := range staged {
		objectKey, err := c.uploadStagedFile(ctx, sf)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, domain.Attachment{
			FileName: sf.FileName,
			FileURL:  objectKey,
			FileType: sf.FileType,
			FileSize: sf.FileSize,
		})
	}

	msg, err := c.SendMessage(domain.MessageDraft{Content: content, Attachments: attachments})
	if err != nil {
		return nil, err
	}
	c.drafts.mu.Lock()
	delete(c.drafts.staged, key)
	c.drafts.mu.Unlock()
	return msg, nil
}

func (c *Client) uploadStagedFile(ctx context.Context, sf *StagedFile) (string, error) {
	// a retried draft re-reads from the start
	if _, err := sf.file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	return c.storage.UploadAttachment(uploadCtx, sf.FileName, sf.file)
}

// AttachmentDownloadURL resolves the stored object key to a signed URL.
func (c *Client) AttachmentDownloadURL(ctx context.Context, a domain.Attachment) (string, error) {
	return c.storage.ResolveDownloadURL(ctx, a.FileURL)
}
