package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/buffer"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/observability/metrics"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5

	apologyReply    = "Desculpe, estou com dificuldade para responder agora. Pode tentar de novo em instantes?"
	voiceFailureMsg = "Não consegui entender o áudio. 🙉 Pode escrever sua mensagem?"
	flowDoneReply   = "Prontinho! ✅ Sua consulta está agendada para %s às %s. Até lá!"
	flowAckReply    = "Recebi sua resposta! Se precisar de algo mais, é só chamar. 😊"
)

// Processor handles one coalesced message. *Router satisfies it.
type Processor interface {
	Route(ctx context.Context, msg MessageRequest) error
}

type processedEventStore interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type messageBuffer interface {
	Add(ctx context.Context, key string, msg buffer.Message) (bool, error)
	DrainAfter(ctx context.Context, key string, fn buffer.DrainFunc) error
}

// Worker consumes inbound event jobs from the queue, deduplicates them,
// funnels them through the per-identity buffer, and dispatches each drained
// batch to the processor.
type Worker struct {
	queue       queueClient
	processed   processedEventStore
	buffer      messageBuffer
	processor   Processor
	sender      Sender
	media       whatsapp.MediaFetcher
	transcriber whatsapp.Transcriber
	metrics     *metrics.MessagingMetrics
	logger      *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	media            whatsapp.MediaFetcher
	transcriber      whatsapp.Transcriber
	metrics          *metrics.MessagingMetrics
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithTranscriber wires voice note transcription.
func WithTranscriber(media whatsapp.MediaFetcher, transcriber whatsapp.Transcriber) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.media = media
		cfg.transcriber = transcriber
	}
}

// WithWorkerMetrics wires messaging metrics.
func WithWorkerMetrics(m *metrics.MessagingMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// NewWorker constructs a queue consumer.
func NewWorker(queue queueClient, processed processedEventStore, buf messageBuffer, processor Processor, sender Sender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if processed == nil {
		panic("conversation: processed store cannot be nil")
	}
	if buf == nil {
		panic("conversation: buffer cannot be nil")
	}
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		queue:       queue,
		processed:   processed,
		buffer:      buf,
		processor:   processor,
		sender:      sender,
		media:       cfg.media,
		transcriber: cfg.transcriber,
		metrics:     cfg.metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines and pending drains exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if payload.Kind != jobTypeInbound {
		w.logger.Error("unknown conversation job type", "kind", payload.Kind, "job_id", payload.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if err := w.handleInbound(ctx, payload.Event); err != nil {
		w.logger.Error("inbound event failed", "error", err,
			"job_id", payload.ID, "event_id", payload.Event.EventID, "phone", payload.Event.Phone)
		w.sendApology(ctx, payload.Event)
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) handleInbound(ctx context.Context, event InboundEvent) error {
	// Dedup fails open: at-least-once beats dropping a patient message.
	inserted, err := w.processed.MarkProcessed(ctx, "whatsapp", event.EventID)
	if err != nil {
		w.logger.Warn("idempotency store unavailable, processing anyway", "error", err, "event_id", event.EventID)
	} else if !inserted {
		w.logger.Debug("duplicate event dropped", "event_id", event.EventID)
		w.metrics.ObserveDuplicate()
		return nil
	}

	if event.Type == EventFormReply {
		return w.handleFormReply(ctx, event)
	}

	text := event.Text
	if event.Type == EventVoice {
		transcript, err := whatsapp.TranscribeVoice(ctx, w.media, w.transcriber, event.MediaID, event.MimeType)
		if err != nil {
			w.logger.Warn("voice transcription failed", "error", err, "event_id", event.EventID)
			if w.sender != nil {
				if _, sendErr := w.sender.SendText(ctx, event.Phone, voiceFailureMsg); sendErr != nil {
					w.logger.Error("failed to send voice failure reply", "error", sendErr, "phone", event.Phone)
				}
			}
			return nil
		}
		text = transcript
	}

	key := event.IdentityKey()
	first, err := w.buffer.Add(ctx, key, buffer.Message{
		ID:            event.MessageID,
		Text:          text,
		ContactName:   event.ContactName,
		ButtonPayload: event.ButtonPayload,
		ReceivedAt:    event.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("conversation: buffer add: %w", err)
	}
	if !first {
		return nil
	}

	// First message of a batch schedules the deferred drain. The drain
	// outlives this job, so it runs on its own goroutine under the worker
	// lifecycle context.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := w.buffer.DrainAfter(ctx, key, func(drainCtx context.Context, batch buffer.Combined) error {
			w.metrics.ObserveBatchSize(batch.Count)
			return w.processor.Route(drainCtx, MessageRequest{
				ClinicID:      event.ClinicID,
				Phone:         event.Phone,
				MessageID:     batch.MessageID,
				Text:          batch.Text,
				ContactName:   batch.ContactName,
				ButtonPayload: batch.ButtonPayload,
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("buffer drain failed", "error", err, "key", key)
			w.sendApology(context.Background(), event)
		}
	}()
	return nil
}

// handleFormReply closes the loop on a finished flow. The booking itself
// happened server-side during data_exchange; the completion payload echoed
// through the webhook only confirms it in the chat, so it bypasses the
// debounce buffer and the router.
func (w *Worker) handleFormReply(ctx context.Context, event InboundEvent) error {
	if w.sender == nil {
		return nil
	}

	var sub struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.Unmarshal([]byte(event.Text), &sub); err != nil || sub.Date == "" || sub.Time == "" {
		if err != nil {
			w.logger.Warn("unparseable flow completion", "error", err, "event_id", event.EventID)
		}
		if _, sendErr := w.sender.SendText(ctx, event.Phone, flowAckReply); sendErr != nil {
			return fmt.Errorf("conversation: form reply ack: %w", sendErr)
		}
		return nil
	}

	body := fmt.Sprintf(flowDoneReply, formatDateBR(sub.Date), sub.Time)
	if _, err := w.sender.SendText(ctx, event.Phone, body); err != nil {
		return fmt.Errorf("conversation: form reply confirm: %w", err)
	}
	return nil
}

func (w *Worker) sendApology(ctx context.Context, event InboundEvent) {
	if w.sender == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := w.sender.SendText(sendCtx, event.Phone, apologyReply); err != nil {
		w.logger.Error("failed to send fallback reply", "error", err, "phone", event.Phone)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
