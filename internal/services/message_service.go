package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/notify"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

const (
	maxMessageLength = 2000
	// conversationScanLimit bounds how many recent messages ListConversations groups.
	conversationScanLimit = 500
)

// Conversation is the latest message exchanged with one partner.
type Conversation struct {
	PartnerID   string         `json:"partnerId"`
	LastMessage models.Message `json:"lastMessage"`
	Unread      int            `json:"unread"`
}

// IMessageService carries direct messages between users, optionally about a listing.
type IMessageService interface {
	Send(ctx context.Context, senderID, receiverID string, listingID *utils.SixID, content string) (*models.Message, error)
	// ListConversations returns one entry per partner, most recent first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	// ListThread returns the messages with otherUserID, oldest first, and marks the received ones read.
	ListThread(ctx context.Context, userID, otherUserID string) ([]models.Message, error)
}

type messageService struct {
	messages      mongodb.MessageRepository
	listings      mongodb.ListingRepository
	notifications mongodb.NotificationRepository
	publisher     notify.Publisher
	now           func() time.Time
}

func NewMessageService(messages mongodb.MessageRepository, listings mongodb.ListingRepository, notifications mongodb.NotificationRepository, publisher notify.Publisher) IMessageService {
	return &messageService{
		messages:      messages,
		listings:      listings,
		notifications: notifications,
		publisher:     publisher,
		now:           utcNow,
	}
}

func (s *messageService) Send(ctx context.Context, senderID, receiverID string, listingID *utils.SixID, content string) (*models.Message, error) {
	if senderID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	content = strings.TrimSpace(content)
	switch {
	case receiverID == "":
		return nil, newError(ErrBadRequest, "receiverId is required")
	case receiverID == senderID:
		return nil, newError(ErrBadRequest, "cannot send a message to yourself")
	case content == "":
		return nil, newError(ErrBadRequest, "content is required")
	case utf8.RuneCountInString(content) > maxMessageLength:
		return nil, newError(ErrBadRequest, "content must be at most %d characters", maxMessageLength)
	}
	if listingID != nil {
		if _, err := s.listings.FindByID(ctx, *listingID); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, newError(ErrNotFound, "listing not found")
			}
			return nil, internalError(err, "failed to load listing")
		}
	}

	now := s.now()
	message := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		ListingID:  listingID,
		Type:       models.MessageTypeText,
		Content:    content,
		CreatedAt:  now,
	}
	if err := s.messages.Insert(ctx, message); err != nil {
		return nil, internalError(err, "failed to send message")
	}

	data := map[string]interface{}{
		"messageId":   message.ID.String(),
		"otherUserId": senderID,
	}
	if listingID != nil {
		data["listingId"] = listingID.String()
	}
	notification := &models.Notification{
		RecipientID: receiverID,
		ActorID:     senderID,
		Type:        models.NotificationTypeMessage,
		Data:        data,
		CreatedAt:   now,
	}
	if err := s.notifications.Insert(ctx, notification); err != nil {
		log.Printf("MessageService: failed to store notification for message %s: %v", message.ID.String(), err)
		return message, nil
	}
	if err := s.publisher.Publish(ctx, notification); err != nil {
		log.Printf("MessageService: failed to publish notification %s: %v", notification.ID.String(), err)
	}
	return message, nil
}

func (s *messageService) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if userID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	messages, err := s.messages.ListInvolving(ctx, userID, conversationScanLimit)
	if err != nil {
		return nil, internalError(err, "failed to list conversations")
	}

	conversations := []Conversation{}
	index := map[string]int{}
	for _, m := range messages {
		partner := m.ReceiverID
		if partner == userID {
			partner = m.SenderID
		}
		i, ok := index[partner]
		if !ok {
			i = len(conversations)
			index[partner] = i
			conversations = append(conversations, Conversation{PartnerID: partner, LastMessage: m})
		}
		if m.ReceiverID == userID && !m.Read {
			conversations[i].Unread++
		}
	}
	return conversations, nil
}

func (s *messageService) ListThread(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	if userID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	if otherUserID == "" || otherUserID == userID {
		return nil, newError(ErrBadRequest, "a conversation partner is required")
	}
	messages, err := s.messages.ListThread(ctx, userID, otherUserID)
	if err != nil {
		return nil, internalError(err, "failed to load conversation")
	}
	if _, err := s.messages.MarkThreadRead(ctx, userID, otherUserID); err != nil {
		log.Printf("MessageService: failed to mark messages from %s to %s read: %v", otherUserID, userID, err)
	}
	return messages, nil
}
