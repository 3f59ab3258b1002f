package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/auction/events"
)

// Journal records room events for audit. It is never read back by the
// auction itself.
type Journal interface {
	Append(ctx context.Context, env events.Envelope) error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Append(context.Context, events.Envelope) error { return nil }

type JetStreamConfig struct {
	StreamName      string
	SubjectPrefix   string
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int           // Number of replicas for the stream
	DuplicateWindow time.Duration // Window for duplicate detection
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		StreamName:      "BIDROOM_EVENTS",
		SubjectPrefix:   "bidroom.events",
		MaxAge:          7 * 24 * time.Hour, // 7 days
		MaxMsgs:         -1,                 // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamJournal appends event envelopes to a JetStream stream, using the
// event id for duplicate suppression.
type JetStreamJournal struct {
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamJournal(ctx context.Context, nc *nats.Conn, cfg JetStreamConfig) (*JetStreamJournal, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	j := &JetStreamJournal{js: js, config: cfg}
	if err := j.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return j, nil
}

func (j *JetStreamJournal) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        j.config.StreamName,
		Description: "Auction room events",
		Subjects:    []string{fmt.Sprintf("%s.>", j.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      j.config.MaxAge,
		MaxMsgs:     j.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    j.config.Replicas,
		Duplicates:  j.config.DuplicateWindow,
	}

	stream, err := j.js.Stream(ctx, j.config.StreamName)
	if err != nil {
		if _, err = j.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", j.config.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = j.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", j.config.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func (j *JetStreamJournal) Append(ctx context.Context, env events.Envelope) error {
	subject := fmt.Sprintf("%s.%s.%s", j.config.SubjectPrefix, env.RoomCode, env.Type)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := j.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(env.Type)},
			"Room-Code":  []string{env.RoomCode},
			"Event-ID":   []string{env.ID},
		},
	},
		jetstream.WithMsgID(env.ID),
		jetstream.WithExpectStream(j.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", env.ID).
		Uint64("sequence", ack.Sequence).
		Msg("journaled event")
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

type WriterConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:  1024,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// JournalWriter moves journal appends off the caller's goroutine. Appends
// are queued and retried; when the queue is full the event is dropped.
type JournalWriter struct {
	journal Journal
	config  WriterConfig
	queue   chan events.Envelope

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewJournalWriter(j Journal, cfg WriterConfig) *JournalWriter {
	return &JournalWriter{
		journal: j,
		config:  cfg,
		queue:   make(chan events.Envelope, cfg.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

// Append enqueues env without blocking.
func (w *JournalWriter) Append(_ context.Context, env events.Envelope) error {
	select {
	case w.queue <- env:
	default:
		log.Warn().Str("event_id", env.ID).Str("room_code", env.RoomCode).Msg("journal queue full, dropping event")
	}
	return nil
}

func (w *JournalWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("journal writer already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().Int("queue_size", w.config.QueueSize).Msg("journal writer started")
	return nil
}

func (w *JournalWriter) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("journal writer not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	log.Info().Msg("journal writer stopped")
	return nil
}

func (w *JournalWriter) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case env := <-w.queue:
			if err := w.appendWithRetry(ctx, env); err != nil {
				log.Error().Err(err).Str("event_id", env.ID).Msg("failed to journal event")
			}
		}
	}
}

func (w *JournalWriter) appendWithRetry(ctx context.Context, env events.Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.journal.Append(ctx, env); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", env.ID).
				Int("attempt", attempt+1).
				Msg("failed to journal event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
