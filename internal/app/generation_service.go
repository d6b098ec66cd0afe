package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"ollamachat/internal/ai"
	"ollamachat/internal/generation"
	"ollamachat/internal/model"
	"ollamachat/internal/repository"
)

var ErrPromptRequired = errors.New("prompt is required")

// In-band strings written to an already-committed stream. Once the chunked
// response has started these are the only way to surface a failure.
const (
	apologyConnect   = "Sorry, I encountered an error connecting to the AI service. Please try again."
	apologyOffline   = "Sorry, the AI service is not available. Please make sure Ollama is running."
	apologyGeneric   = "Sorry, I encountered an error processing your request. Please try again."
	cancelledNotice  = "\n\n[Request cancelled by user]"
	errorNoticePref  = "\n\nError: "
	maxTitleRunes    = 50
	titleTruncRunes  = 47
	auditPublishWait = 5 * time.Second
)

// StreamSink receives relayed text. Implementations must flush each write so
// deltas reach the client without batching.
type StreamSink interface {
	WriteText(s string) error
}

// AuditPublisher records generation outcomes off the request path.
type AuditPublisher interface {
	Publish(ctx context.Context, record model.GenerationRecord) error
}

// GenerationService is the relay engine: it proxies one prompt to the model
// backend, forwards deltas downstream as they decode, persists the final
// assistant turn, and tears down registry state on every exit path.
type GenerationService struct {
	chatRepo        *repository.ChatRepository
	messageRepo     *repository.MessageRepository
	auditLog        *repository.GenerationRecordRepository
	registry        *generation.Registry
	llm             *ai.OllamaClient
	historyCache    HistoryCache
	auditor         AuditPublisher
	model           string
	persistOnCancel bool
}

// Generation is one in-flight send-message request between Begin and Stream.
type Generation struct {
	ChatID uint
	UserID uint
	Prompt string

	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
}

func NewGenerationService(
	chatRepo *repository.ChatRepository,
	messageRepo *repository.MessageRepository,
	auditLog *repository.GenerationRecordRepository,
	registry *generation.Registry,
	llm *ai.OllamaClient,
	historyCache HistoryCache,
	auditor AuditPublisher,
	modelName string,
	persistOnCancel bool,
) *GenerationService {
	return &GenerationService{
		chatRepo:        chatRepo,
		messageRepo:     messageRepo,
		auditLog:        auditLog,
		registry:        registry,
		llm:             llm,
		historyCache:    historyCache,
		auditor:         auditor,
		model:           modelName,
		persistOnCancel: persistOnCancel,
	}
}

// Begin runs every side effect that must happen before the response commits
// to streaming: it validates the request, durably persists the user message,
// derives the chat title on a first message, and registers a cancellation
// handle. Failures here are still reportable as structured errors.
func (s *GenerationService) Begin(ctx context.Context, userID, chatID uint, prompt string) (*Generation, error) {
	if userID == 0 || chatID == 0 {
		return nil, ErrInvalidInput
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}

	chat, err := s.chatRepo.GetByIDAndUserID(chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	uid := userID
	userMessage := &model.Message{
		ChatID:  chatID,
		UserID:  &uid,
		Role:    model.RoleUser,
		Content: prompt,
	}
	if err := s.messageRepo.Create(userMessage); err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, chatID)

	count, err := s.messageRepo.CountByChatID(chatID)
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if err := s.chatRepo.UpdateTitle(chatID, deriveTitle(prompt)); err != nil {
			return nil, err
		}
	}

	genCtx, cancel := context.WithCancel(ctx)
	if err := s.registry.Register(chatID, cancel); err != nil {
		cancel()
		return nil, err
	}

	return &Generation{
		ChatID:  chatID,
		UserID:  userID,
		Prompt:  prompt,
		ctx:     genCtx,
		cancel:  cancel,
		started: time.Now(),
	}, nil
}

// AuditHistory returns recent generation outcomes for a chat the caller
// owns, newest first.
func (s *GenerationService) AuditHistory(userID, chatID uint, limit int) ([]model.GenerationRecord, error) {
	if userID == 0 || chatID == 0 {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByIDAndUserID(chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	return s.auditLog.ListByChatID(chatID, limit)
}

// Abandon tears down a generation that never reached Stream.
func (s *GenerationService) Abandon(gen *Generation) {
	s.registry.Release(gen.ChatID)
	gen.cancel()
}

// Stream drives the upstream call and the relay loop. The caller has already
// committed the downstream response to chunked streaming, so every failure
// from here on is surfaced as in-band text. The registry entry is released
// exactly once, whichever exit path is taken.
func (s *GenerationService) Stream(gen *Generation, sink StreamSink) error {
	defer func() {
		s.registry.Release(gen.ChatID)
		gen.cancel()
	}()

	var accumulated strings.Builder
	var completed bool
	var upstreamErrMsg string

	err := s.llm.Generate(gen.ctx, s.model, gen.Prompt, func(chunk ai.GenerateChunk) error {
		if chunk.Error != "" {
			upstreamErrMsg = chunk.Error
			return ai.ErrStopStream
		}
		if chunk.Response != "" {
			accumulated.WriteString(chunk.Response)
			if writeErr := sink.WriteText(chunk.Response); writeErr != nil {
				return writeErr
			}
		}
		if chunk.Done {
			completed = true
			return ai.ErrStopStream
		}
		return nil
	})

	switch {
	case err == nil && upstreamErrMsg != "":
		_ = sink.WriteText(errorNoticePref + upstreamErrMsg)
		s.audit(gen, model.GenerationFailed, accumulated.Len())
		return nil

	case err == nil && completed:
		s.persistAssistant(gen.ChatID, accumulated.String())
		s.audit(gen, model.GenerationCompleted, accumulated.Len())
		return nil

	case err == nil:
		// Upstream ended without a done record. Keep whatever arrived.
		if accumulated.Len() > 0 {
			s.persistAssistant(gen.ChatID, accumulated.String())
		}
		s.audit(gen, model.GenerationCompleted, accumulated.Len())
		return nil

	case gen.ctx.Err() != nil:
		// Registry cancel or client abort. Bytes already relayed are not
		// retracted; the partial turn is discarded unless configured
		// otherwise.
		_ = sink.WriteText(cancelledNotice)
		if s.persistOnCancel && accumulated.Len() > 0 {
			s.persistAssistant(gen.ChatID, accumulated.String())
		}
		s.audit(gen, model.GenerationCancelled, accumulated.Len())
		return context.Canceled

	case errors.Is(err, ai.ErrUpstreamDown):
		_ = sink.WriteText(apologyOffline)
		s.audit(gen, model.GenerationFailed, 0)
		return err

	case errors.Is(err, ai.ErrUpstreamUnavailable):
		_ = sink.WriteText(apologyConnect)
		s.audit(gen, model.GenerationFailed, 0)
		return err

	default:
		// Idle timeout, mid-stream network drop, or a downstream write
		// failure. The stream may already be broken; the apology is
		// best-effort.
		log.Printf("generation stream failed: chat=%d err=%v", gen.ChatID, err)
		_ = sink.WriteText(apologyGeneric)
		s.audit(gen, model.GenerationFailed, accumulated.Len())
		return err
	}
}

func (s *GenerationService) persistAssistant(chatID uint, content string) {
	message := &model.Message{
		ChatID:  chatID,
		Role:    model.RoleAssistant,
		Content: content,
	}
	if err := s.messageRepo.Create(message); err != nil {
		log.Printf("persist assistant message failed: chat=%d err=%v", chatID, err)
		return
	}
	s.invalidateHistory(context.Background(), chatID)
}

func (s *GenerationService) invalidateHistory(ctx context.Context, chatID uint) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, chatID)
	_ = s.historyCache.DeleteHistory(ctx, chatID)
}

func (s *GenerationService) audit(gen *Generation, status string, chars int) {
	if s.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditPublishWait)
	defer cancel()

	record := model.GenerationRecord{
		ChatID:     gen.ChatID,
		UserID:     gen.UserID,
		Model:      s.model,
		Status:     status,
		Chars:      chars,
		DurationMS: time.Since(gen.started).Milliseconds(),
	}
	if err := s.auditor.Publish(ctx, record); err != nil {
		log.Printf("publish generation audit failed: chat=%d err=%v", gen.ChatID, err)
	}
}

func deriveTitle(prompt string) string {
	if utf8.RuneCountInString(prompt) <= maxTitleRunes {
		return prompt
	}
	return string([]rune(prompt)[:titleTruncRunes]) + "..."
}
