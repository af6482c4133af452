package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal-backend/internal/chat"
	"portal-backend/internal/database"
	"portal-backend/internal/extraction"
	"portal-backend/internal/inference"
	"portal-backend/internal/storage"
	"portal-backend/pkg/api"
)

const (
	maxUploadBytes     = 64 << 20
	defaultMessagePage = 100
	timestampLayout    = "2006-01-02 15:04:05"
)

type ChatService struct {
	db        *gorm.DB
	exchanger *chat.Exchanger
	extractor *extraction.Extractor
	objects   storage.ObjectStore
}

func NewChatService(db *gorm.DB, exchanger *chat.Exchanger, extractor *extraction.Extractor, objects storage.ObjectStore) *ChatService {
	return &ChatService{
		db:        db,
		exchanger: exchanger,
		extractor: extractor,
		objects:   objects,
	}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetConversations))
		r.Post("/", RestHandler(s.CreateConversation))
		r.Get("/{conversation_id}", RestHandler(s.GetConversation))
		r.Post("/{conversation_id}/rename", RestHandler(s.RenameConversation))
		r.Delete("/{conversation_id}", RestHandler(s.DeleteConversation))
		r.Get("/{conversation_id}/messages", RestHandler(s.GetMessages))
		r.Post("/{conversation_id}/messages", s.SendMessage)
	})
	r.Post("/attachments", RestHandler(s.UploadAttachment))
}

func (s *ChatService) GetConversations(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}

	conversations, err := database.GetConversations(s.db, userId)
	if err != nil {
		return nil, err
	}

	resp := api.GetConversationsResponse{Conversations: []api.ConversationMetadata{}}
	for _, conversation := range conversations {
		resp.Conversations = append(resp.Conversations, conversationView(conversation))
	}
	return resp, nil
}

func (s *ChatService) CreateConversation(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.CreateConversationRequest](r)
	if err != nil {
		return nil, err
	}

	conversation := database.Conversation{
		Id:           uuid.New(),
		Title:        req.Title,
		UserId:       userId,
		CreationTime: time.Now().UTC(),
	}
	if err := database.CreateConversation(s.db, &conversation); err != nil {
		return nil, err
	}

	return api.CreateConversationResponse{ConversationId: conversation.Id.String()}, nil
}

func (s *ChatService) GetConversation(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	conversation, err := database.GetConversation(s.db, conversationId, userId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusNotFound, "conversation not found")
	} else if err != nil {
		return nil, err
	}

	return conversationView(conversation), nil
}

func (s *ChatService) RenameConversation(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.RenameConversationRequest](r)
	if err != nil {
		return nil, err
	}

	if err := database.RenameConversation(s.db, conversationId, userId, req.Title); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *ChatService) DeleteConversation(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	if err := database.DeleteConversation(s.db, conversationId, userId); err != nil {
		return nil, err
	}
	s.exchanger.InvalidateContinuation(conversationId)
	return nil, nil
}

type getMessagesParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

func (s *ChatService) GetMessages(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[getMessagesParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultMessagePage
	}

	if _, err := database.GetConversation(s.db, conversationId, userId); errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusNotFound, "conversation not found")
	} else if err != nil {
		return nil, err
	}

	messages, err := database.GetMessagesPage(s.db, conversationId, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}

	resp := api.GetMessagesResponse{Messages: []api.MessageView{}}
	for _, message := range messages {
		resp.Messages = append(resp.Messages, messageView(message))
	}
	return resp, nil
}

// SendMessage runs one chat turn. With "stream": false the response is a
// single SendMessageResponse; with "stream": true the body is a sequence of
// flushed frames, one StreamDelta per model fragment and a final frame with
// the completed exchange.
func (s *ChatService) SendMessage(w http.ResponseWriter, r *http.Request) {
	userId, err := RequestUserId(r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		writeErrorResponse(w, err)
		return
	}
	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	if !req.Stream {
		exchange, err := s.exchanger.SendMessage(r.Context(), conversationId, userId, req.Message, req.AttachmentIds, nil)
		if err != nil {
			writeErrorResponse(w, mapChatError(err))
			return
		}
		WriteJsonResponse(w, exchangeView(exchange))
		return
	}

	stream := StreamResponse(func(yield func(any, error) bool) {
		// yield must not be called again once it returns false (the client
		// went away); the exchange itself is torn down via r.Context().
		alive := true
		emit := func(data any, err error) {
			if alive {
				alive = yield(data, err)
			}
		}

		exchange, err := s.exchanger.SendMessage(r.Context(), conversationId, userId, req.Message, req.AttachmentIds, func(fragment string) {
			emit(api.StreamDelta{Delta: fragment}, nil)
		})
		if err != nil {
			emit(nil, mapChatError(err))
			return
		}
		emit(exchangeView(exchange), nil)
	})

	RestStreamHandler(func(*http.Request) (StreamResponse, error) {
		return stream, nil
	})(w, r)
}

func (s *ChatService) UploadAttachment(r *http.Request) (any, error) {
	userId, err := RequestUserId(r)
	if err != nil {
		return nil, err
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing 'file' form field")
	}
	defer file.Close()

	text, err := s.extractor.Extract(header.Filename, file)
	if err != nil {
		var uerr *extraction.UnsupportedFileParseError
		if errors.As(err, &uerr) {
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		}
		return nil, err
	}

	attachment := database.Attachment{
		Id:           uuid.New(),
		Name:         header.Filename,
		Content:      text,
		UserId:       userId,
		CreationTime: time.Now().UTC(),
	}
	if err := database.CreateAttachment(s.db, &attachment); err != nil {
		return nil, err
	}

	// The raw upload is kept as a convenience copy; the extracted text above
	// is what the exchange pipeline uses, so a blob-store failure does not
	// fail the upload.
	if _, err := file.Seek(0, 0); err == nil {
		key := fmt.Sprintf("attachments/%s", attachment.Id)
		if err := s.objects.PutObject(r.Context(), key, file); err != nil {
			slog.Warn("failed to store raw attachment blob", "attachment_id", attachment.Id, "error", err)
		}
	}

	return api.UploadAttachmentResponse{
		AttachmentId: attachment.Id.String(),
		Name:         attachment.Name,
		TextLength:   len(text),
	}, nil
}

func mapChatError(err error) error {
	var terr *inference.TransportError
	var perr *inference.ProtocolError

	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.Is(err, chat.ErrAttachmentNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.As(err, &terr), errors.As(err, &perr), errors.Is(err, inference.ErrNoContent):
		return CodedError(http.StatusBadGateway, err)
	default:
		return err
	}
}

func conversationView(conversation database.Conversation) api.ConversationMetadata {
	return api.ConversationMetadata{
		Id:           conversation.Id,
		Title:        conversation.Title,
		CreationTime: conversation.CreationTime.Format(timestampLayout),
	}
}

func messageView(message database.Message) api.MessageView {
	view := api.MessageView{
		Id:        message.Id,
		Content:   message.Content,
		FromUser:  message.FromUser,
		Timestamp: message.CreationTime.Format(timestampLayout),
	}
	for _, attachment := range message.Attachments {
		view.AttachmentIds = append(view.AttachmentIds, attachment.Id)
	}
	if len(message.Metadata) > 0 {
		view.Metadata = message.Metadata
	}
	return view
}

func exchangeView(exchange *chat.Exchange) api.SendMessageResponse {
	return api.SendMessageResponse{
		UserMessage:      messageView(exchange.UserMessage),
		AssistantMessage: messageView(exchange.AssistantMessage),
	}
}
