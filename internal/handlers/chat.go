package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/messaging"
	"chat-core/internal/middleware"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

var allowedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true,
	"txt": true, "mp3": true, "wav": true, "mp4": true,
}

type rosterView interface {
	Roster(ctx context.Context, userID int) ([]models.User, error)
	RequestsSent(ctx context.Context, userID int) ([]models.User, error)
	RequestsReceived(ctx context.Context, userID int) ([]models.User, error)
	Discoverable(ctx context.Context, userID int, location string) ([]models.User, error)
}

type userLookup interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
}

type groupLister interface {
	GroupsFor(ctx context.Context, userID int) ([]models.Group, error)
}

type unreadSource interface {
	UnreadFor(ctx context.Context, userID int) (map[string]bool, error)
}

type historyFetcher interface {
	Fetch(ctx context.Context, userID int, q messaging.HistoryQuery) ([]models.Message, error)
}

// UploadOptions configure where uploaded files land and how they are addressed.
type UploadOptions struct {
	Dir           string
	MaxBytes      int64
	PublicBaseURL string
}

// ChatHandler serves the HTTP side channel of the chat: uploads and the reconnect fetches.
type ChatHandler struct {
	roster  rosterView
	users   userLookup
	groups  groupLister
	unread  unreadSource
	history historyFetcher
	uploads UploadOptions
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(roster rosterView, users userLookup, groups groupLister, unread unreadSource, history historyFetcher, uploads UploadOptions) *ChatHandler {
	return &ChatHandler{roster: roster, users: users, groups: groups, unread: unread, history: history, uploads: uploads}
}

// Upload handles POST /api/chat/upload. The returned URL is what a later message event
// carries as file_url.
func (h *ChatHandler) Upload(c *gin.Context) {
	if h.uploads.MaxBytes > 0 {
		// multipart framing is small next to the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.MaxBytes+1<<20)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if h.uploads.MaxBytes > 0 && file.Size > h.uploads.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "file type not allowed"})
		return
	}

	stored := uuid.NewString() + "." + ext
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploads.Dir, stored)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fileUrl":  strings.TrimRight(h.uploads.PublicBaseURL, "/") + "/uploads/" + stored,
		"fileName": filepath.Base(file.Filename),
	})
}

// Preload returns everything a client needs after (re)connecting. users carries the caller
// first, then the roster.
func (h *ChatHandler) Preload(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	ctx := c.Request.Context()

	self, err := h.users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		self, err = models.User{ID: userID}, nil
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	roster, err := h.roster.Roster(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contacts"})
		return
	}
	users := append([]models.User{self}, roster...)
	received, err := h.roster.RequestsReceived(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load received requests"})
		return
	}
	sent, err := h.roster.RequestsSent(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sent requests"})
		return
	}
	groups, err := h.groups.GroupsFor(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	unread, err := h.unread.UnreadFor(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":                   users,
		"pendingRequestsReceived": received,
		"pendingRequestsSent":     sent,
		"groups":                  groups,
		"unread":                  unread,
	})
}

// Contacts handles GET /api/chat/contacts: users at the caller's network location it can
// still send a connection request to.
func (h *ChatHandler) Contacts(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	h.discoverable(c, userID, "")
}

// ContactsAt is the admin variant of Contacts; ?ip= picks the location to list.
func (h *ChatHandler) ContactsAt(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	location := strings.TrimSpace(c.Query("ip"))
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip is required"})
		return
	}
	h.discoverable(c, userID, location)
}

func (h *ChatHandler) discoverable(c *gin.Context, userID int, location string) {
	users, err := h.roster.Discoverable(c.Request.Context(), userID, location)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// History handles GET /api/chat/history?to_user=|group_id=&before_id=&limit=.
func (h *ChatHandler) History(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var q messaging.HistoryQuery
	for name, dst := range map[string]*int{"to_user": &q.ToUser, "group_id": &q.GroupID, "before_id": &q.BeforeID, "limit": &q.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
			return
		}
		*dst = v
	}

	msgs, err := h.history.Fetch(c.Request.Context(), userID, q)
	switch {
	case errors.Is(err, messaging.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, messaging.ErrUnknownGroup):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	case errors.Is(err, messaging.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
