package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/logger"
)

// Completer produces the assistant reply for an ordered history.
type Completer interface {
	Complete(ctx context.Context, history []ai.Message) (string, error)
}

type Service struct {
	repo              *Repo
	completer         Completer
	publisher         TurnPublisher
	log               *logger.Logger
	contextWindowSize int
}

// NewService wires the store to a completer. contextWindowSize <= 0 sends the
// full history; a nil publisher disables turn events.
func NewService(repo *Repo, completer Completer, publisher TurnPublisher, log *logger.Logger, contextWindowSize int) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if log == nil {
		log = logger.Discard()
	}
	if contextWindowSize < 0 {
		contextWindowSize = 0
	}
	return &Service{
		repo:              repo,
		completer:         completer,
		publisher:         publisher,
		log:               log.WithComponent("chat"),
		contextWindowSize: contextWindowSize,
	}
}

func (s *Service) CreateChat(ctx context.Context, ownerID, title string) (*Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	c := &Chat{
		ID:     common.NewUUID(),
		UserID: ownerID,
		Title:  truncateRunes(title, maxTitleRunes),
	}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return c, nil
}

func (s *Service) ListChats(ctx context.Context, ownerID string) ([]Chat, error) {
	return s.repo.ListChatsByOwner(ctx, ownerID)
}

// GetMessages returns the conversation if callerID owns it, ErrForbidden
// otherwise.
func (s *Service) GetMessages(ctx context.Context, chatID, callerID string) ([]Message, error) {
	if _, err := s.repo.GetOwnedChat(ctx, chatID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

func (s *Service) AppendUserMessage(ctx context.Context, chatID, callerID, content string) (*Message, error) {
	return s.repo.AppendUserMessage(ctx, chatID, callerID, content)
}

func (s *Service) AppendAssistantMessage(ctx context.Context, chatID, content string) (*Message, error) {
	return s.repo.AppendAssistantMessage(ctx, chatID, content)
}

// SendMessage runs one turn. The user message is committed before the
// completer is called, so a failed completion leaves it stored without a
// reply.
func (s *Service) SendMessage(ctx context.Context, callerID, chatID, content string) (reply string, assistantMsgID string, err error) {
	// 1) ownership check + store user message
	userMsg, err := s.repo.AppendUserMessage(ctx, chatID, callerID, content)
	if err != nil {
		return "", "", err
	}

	turn := TurnEvent{ChatID: chatID, UserID: callerID, UserMessageID: userMsg.ID}
	defer func() {
		if err != nil {
			turn.Status = TurnFailed
			turn.Error = err.Error()
		} else {
			turn.Status = TurnCompleted
		}
		s.publish(ctx, turn)
	}()

	// 2) history for the provider, oldest -> newest
	history, err := s.history(ctx, chatID)
	if err != nil {
		return "", "", err
	}

	// 3) completion
	reply, err = s.completer.Complete(ctx, history)
	if err != nil {
		return "", "", err
	}

	// 4) store assistant message
	assistantMsg, err := s.repo.AppendAssistantMessage(ctx, chatID, reply)
	if err != nil {
		return "", "", err
	}
	turn.AssistantMessageID = assistantMsg.ID
	return reply, assistantMsg.ID, nil
}

func (s *Service) history(ctx context.Context, chatID string) ([]ai.Message, error) {
	var msgs []Message
	if s.contextWindowSize > 0 {
		recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, chatID, s.contextWindowSize)
		if err != nil {
			return nil, err
		}
		// reverse to ASC
		msgs = make([]Message, 0, len(recentDesc))
		for i := len(recentDesc) - 1; i >= 0; i-- {
			msgs = append(msgs, recentDesc[i])
		}
		// a window must not open with a reply to a message it cut off
		for len(msgs) > 1 && msgs[0].Role == RoleAssistant {
			msgs = msgs[1:]
		}
	} else {
		all, err := s.repo.ListMessages(ctx, chatID)
		if err != nil {
			return nil, err
		}
		msgs = all
	}

	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, ev TurnEvent) {
	ev.At = time.Now().UTC()
	// the request may already be cancelled; the event should still go out
	if err := s.publisher.PublishTurn(context.WithoutCancel(ctx), ev); err != nil {
		s.log.WithContext(ctx).Warn("publish turn event failed",
			"chat_id", ev.ChatID, "status", ev.Status, "error", err)
	}
}
