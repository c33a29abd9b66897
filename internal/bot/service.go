package bot

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/infra"
	"github.com/iamwavecut/chatguard/internal/observability"
)

const (
	pollTimeoutSeconds = 60
	maxLoopPanics      = 10
	retryDelay         = 3 * time.Second
)

// Service polls the bot API and feeds every update to the processor.
type Service struct {
	source    UpdatesSource
	processor *UpdateProcessor
	config    api.UpdateConfig

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func NewService(source UpdatesSource, processor *UpdateProcessor) *Service {
	config := api.NewUpdate(0)
	config.Timeout = pollTimeoutSeconds
	config.AllowedUpdates = []string{"message", "edited_message", "chat_member", "my_chat_member"}
	return &Service{
		source:    source,
		processor: processor,
		config:    config,
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		infra.GoRecoverable(maxLoopPanics, "process_updates", func() {
			s.run(runCtx)
		})
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.runCancel != nil {
		s.runCancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context) {
	entry := s.getLogEntry()
	for {
		err := s.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			entry.WithField("error", err.Error()).Warn("get updates failed, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// poll owns one polling goroutine. It is cancelled and drained before poll
// returns or unwinds on panic, so a restarted loop never polls alongside it.
func (s *Service) poll(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	updates, errs := GetUpdatesChans(pollCtx, s.source, s.config)
	defer func() {
		cancel()
		for range updates {
		}
	}()

	entry := s.getLogEntry()
	for update := range updates {
		s.config.Offset = update.UpdateID + 1
		done := observability.StartMessageProcessing()
		if err := s.processor.Process(ctx, &update); err != nil {
			entry.WithField("error", err.Error()).Error("cant process update")
			done("error")
			continue
		}
		done("ok")
	}
	return <-errs
}

func (s *Service) getLogEntry() *log.Entry {
	return log.WithField("object", "BotService")
}
