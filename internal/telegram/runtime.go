package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowkeylabs/murmur/internal/audio"
	"github.com/lowkeylabs/murmur/internal/chat"
	"github.com/lowkeylabs/murmur/internal/chunk"
	"github.com/lowkeylabs/murmur/internal/retryutil"
	"github.com/lowkeylabs/murmur/internal/speech"
)

// User-facing notices for the relay surface.
const (
	GreetingNotice          = "Hello! I am your AI chatbot. How can I help you today?"
	ProcessingNotice        = "Processing voice message, please wait..."
	CannotUnderstandNotice  = "Sorry, I couldn't understand the voice message."
	VoiceErrorNotice        = "An error occurred while processing your voice message."
	defaultWorkerQueueSize  = 16
	defaultAttachmentBudget = int64(20 * 1024 * 1024)
)

// job is one inbound message scheduled onto its chat's worker.
type job struct {
	ChatID    int64
	UserID    int64
	MessageID int64
	Text      string
	Voice     *Voice
}

type chatWorker struct {
	jobs chan job
}

// Runtime long-polls the Bot API and relays messages through the
// normalize/transcribe/respond pipeline. Each chat gets its own worker
// goroutine so turns within a chat stay ordered while chats never block each
// other.
type Runtime struct {
	api          *API
	orchestrator *chat.Orchestrator
	normalizer   *audio.Normalizer
	transcriber  *speech.Transcriber
	logger       *slog.Logger

	pollTimeout time.Duration
	replyMaxLen int
	tempDir     string
	queueSize   int

	mu      sync.Mutex
	workers map[int64]*chatWorker
}

type RuntimeOptions struct {
	API          *API
	Orchestrator *chat.Orchestrator
	Normalizer   *audio.Normalizer
	Transcriber  *speech.Transcriber
	Logger       *slog.Logger

	PollTimeout time.Duration
	// ReplyMaxLen bounds each delivered message; defaults to chunk.DefaultMaxLen.
	ReplyMaxLen int
	// TempDir receives downloaded voice attachments; defaults to os.TempDir().
	TempDir string
	// QueueSize bounds each chat worker's backlog.
	QueueSize int
}

func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("telegram api is required")
	}
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if opts.Normalizer == nil {
		return nil, fmt.Errorf("audio normalizer is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	replyMaxLen := opts.ReplyMaxLen
	if replyMaxLen <= 0 {
		replyMaxLen = chunk.DefaultMaxLen
	}
	tempDir := strings.TrimSpace(opts.TempDir)
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultWorkerQueueSize
	}
	return &Runtime{
		api:          opts.API,
		orchestrator: opts.Orchestrator,
		normalizer:   opts.Normalizer,
		transcriber:  opts.Transcriber,
		logger:       logger,
		pollTimeout:  pollTimeout,
		replyMaxLen:  replyMaxLen,
		tempDir:      tempDir,
		queueSize:    queueSize,
		workers:      make(map[int64]*chatWorker),
	}, nil
}

// Run polls until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	var me *User
	err := retryutil.Until(ctx, r.logger, "telegram_get_me", 2*time.Second, func(ctx context.Context) error {
		var err error
		me, err = r.api.GetMe(ctx)
		return err
	})
	if err != nil {
		return nil
	}

	r.logger.Info("telegram_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", r.pollTimeout.String(),
		"reply_max_len", r.replyMaxLen,
	)

	var offset int64
	for {
		updates, next, err := r.api.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				r.logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if IsPollTimeout(err) {
				continue
			}
			r.logger.Warn("telegram_poll_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}
		offset = next

		for _, u := range updates {
			j, ok := jobFromUpdate(u)
			if !ok {
				continue
			}
			r.dispatch(ctx, j)
		}
	}
}

// jobFromUpdate extracts a workable job, skipping updates the relay does not
// handle (edits, bot echoes, attachment types other than voice).
func jobFromUpdate(u Update) (job, bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return job{}, false
	}
	if msg.From != nil && msg.From.IsBot {
		return job{}, false
	}
	j := job{
		ChatID:    msg.Chat.ID,
		UserID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      strings.TrimSpace(msg.Text),
		Voice:     msg.Voice,
	}
	if msg.From != nil && msg.From.ID != 0 {
		j.UserID = msg.From.ID
	}
	if j.Text == "" && j.Voice == nil {
		return job{}, false
	}
	return j, true
}

// dispatch hands the job to its chat's worker, creating the worker on first
// contact. A full backlog drops the job rather than stalling the poll loop.
func (r *Runtime) dispatch(ctx context.Context, j job) {
	r.mu.Lock()
	w, ok := r.workers[j.ChatID]
	if !ok {
		w = &chatWorker{jobs: make(chan job, r.queueSize)}
		r.workers[j.ChatID] = w
		go r.workerLoop(ctx, j.ChatID, w)
	}
	r.mu.Unlock()

	select {
	case w.jobs <- j:
	default:
		r.logger.Warn("telegram_queue_full", "chat_id", j.ChatID, "message_id", j.MessageID)
	}
}

func (r *Runtime) workerLoop(ctx context.Context, chatID int64, w *chatWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-w.jobs:
			if !ok {
				return
			}
			r.handle(ctx, j)
		}
	}
}

func (r *Runtime) handle(ctx context.Context, j job) {
	switch {
	case isStartCommand(j.Text):
		if _, err := r.api.SendMessage(ctx, j.ChatID, GreetingNotice); err != nil {
			r.logger.Warn("telegram_send_error", "chat_id", j.ChatID, "error", err.Error())
		}
	case j.Voice != nil:
		r.handleVoice(ctx, j)
	default:
		r.respond(ctx, j, j.Text)
	}
}

func isStartCommand(text string) bool {
	text = strings.TrimSpace(text)
	return text == "/start" || strings.HasPrefix(text, "/start@")
}

// respond runs one conversational turn and delivers the reply in bounded
// chunks.
func (r *Runtime) respond(ctx context.Context, j job, prompt string) {
	notify := func(ctx context.Context) error {
		return r.api.SendChatAction(ctx, j.ChatID, "typing")
	}
	reply := r.orchestrator.Respond(ctx, j.UserID, prompt, notify)
	for _, piece := range chunk.Split(reply, r.replyMaxLen) {
		if _, err := r.api.SendMessage(ctx, j.ChatID, piece); err != nil {
			r.logger.Warn("telegram_send_error", "chat_id", j.ChatID, "error", err.Error())
			return
		}
	}
}

// handleVoice downloads the attachment, normalizes and transcribes it, then
// feeds the transcript through the ordinary text path. The downloaded file is
// removed on every exit; the canonical file is deleted by the transcriber.
func (r *Runtime) handleVoice(ctx context.Context, j job) {
	processingID, err := r.api.SendMessage(ctx, j.ChatID, ProcessingNotice)
	if err != nil {
		r.logger.Warn("telegram_send_error", "chat_id", j.ChatID, "error", err.Error())
	}
	deleteProcessing := func() {
		if processingID == 0 {
			return
		}
		if err := r.api.DeleteMessage(ctx, j.ChatID, processingID); err != nil {
			r.logger.Debug("telegram_delete_notice_error", "chat_id", j.ChatID, "error", err.Error())
		}
		processingID = 0
	}
	defer deleteProcessing()

	file, err := r.api.GetFile(ctx, j.Voice.FileID)
	if err != nil {
		r.logger.Error("voice_get_file_error", "chat_id", j.ChatID, "error", err.Error())
		r.sendNotice(ctx, j.ChatID, VoiceErrorNotice)
		return
	}

	ext := filepath.Ext(file.FilePath)
	if ext == "" {
		ext = ".ogg"
	}
	downloadPath := filepath.Join(r.tempDir, uuid.NewString()+ext)
	defer func() {
		if err := os.Remove(downloadPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("voice_temp_remove_error", "path", downloadPath, "error", err.Error())
		}
	}()

	size, err := r.api.DownloadFile(ctx, file.FilePath, downloadPath, defaultAttachmentBudget)
	if err != nil {
		r.logger.Error("voice_download_error", "chat_id", j.ChatID, "error", err.Error())
		r.sendNotice(ctx, j.ChatID, VoiceErrorNotice)
		return
	}
	r.logger.Info("voice_downloaded", "chat_id", j.ChatID, "bytes", size, "duration", j.Voice.Duration)

	normalized, err := r.normalizer.Normalize(ctx, downloadPath)
	if err != nil {
		r.logger.Error("voice_normalize_error", "chat_id", j.ChatID, "error", err.Error())
		r.sendNotice(ctx, j.ChatID, CannotUnderstandNotice)
		return
	}

	transcript, err := r.transcriber.Transcribe(ctx, normalized)
	deleteProcessing()
	if err != nil {
		if errors.Is(err, speech.ErrModelNotFound) {
			r.logger.Error("voice_model_missing", "error", err.Error())
		} else {
			r.logger.Error("voice_transcribe_error", "chat_id", j.ChatID, "error", err.Error())
		}
		r.sendNotice(ctx, j.ChatID, VoiceErrorNotice)
		return
	}
	if strings.TrimSpace(transcript) == "" {
		r.sendNotice(ctx, j.ChatID, CannotUnderstandNotice)
		return
	}

	r.logger.Info("voice_transcribed", "chat_id", j.ChatID, "chars", len(transcript))
	r.respond(ctx, j, transcript)
}

func (r *Runtime) sendNotice(ctx context.Context, chatID int64, text string) {
	if _, err := r.api.SendMessage(ctx, chatID, text); err != nil {
		r.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}
