package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"backupd/internal/transport"
)

// DefaultFilePath is used when the file sink is enabled without a path.
const DefaultFilePath = "/app/logs/backup_service.log"

// defaultCloseWait bounds how long Close waits for an in-flight alert.
const defaultCloseWait = 5 * time.Second

// Service owns the log sinks and lets Apply() swap them at runtime.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	file     *os.File
	filePath string

	// telegram alerts
	sender    transport.Sender
	tgQueue   chan telegramItem
	tgOnce    sync.Once
	tgCancel  context.CancelFunc
	tgWG      sync.WaitGroup
	closeWait time.Duration

	// guarded by mu
	target   transport.ChatTarget
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type telegramItem struct {
	to  transport.ChatTarget
	msg string
}

// New creates the logging service, applies cfg immediately and returns both
// the Service and a root Logger bound to it.
//
// sender may be nil; the Telegram sink then stays silent.
func New(cfg Config, sender transport.Sender) (*Service, Logger) {
	setGlobals()

	s := &Service{
		cfg:       cfg,
		sender:    sender,
		tgQueue:   make(chan telegramItem, 256),
		closeWait: defaultCloseWait,
	}
	s.root.Store(zerolog.New(newLineWriter(Stdout())).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetTelegramTarget sets the chat that receives alert lines.
func (s *Service) SetTelegramTarget(to transport.ChatTarget) {
	s.mu.Lock()
	s.target = to
	s.mu.Unlock()
}

// Close stops the Telegram worker and closes the log file. A send that
// ignores cancellation is abandoned after closeWait.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.filePath = ""
	cancel := s.tgCancel
	s.tgCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		stopped := make(chan struct{})
		go func() {
			s.tgWG.Wait()
			close(stopped)
		}()
		t := time.NewTimer(s.closeWait)
		select {
		case <-stopped:
		case <-t.C:
			fmt.Fprintf(Stderr(), "logx: telegram alert still in flight after %v; abandoning it\n", s.closeWait)
		}
		t.Stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps logger outputs and levels. Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Telegram.MinLevel, zerolog.ErrorLevel)
	rps := max(1, cfg.Telegram.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	// The old file is closed only after the new root is stored, and kept
	// open when the path is unchanged, so lines logged during a reload land.
	oldFile, oldPath := s.file, s.filePath
	s.file, s.filePath = nil, ""

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newLineWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFilePath
		}
		f := oldFile
		if f == nil || path != oldPath {
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
				f = nil
			}
		}
		if f != nil {
			s.file, s.filePath = f, path
			if strings.EqualFold(strings.TrimSpace(cfg.File.Format), "json") {
				writers = append(writers, zerolog.SyncWriter(f))
			} else {
				writers = append(writers, newLineWriter(zerolog.SyncWriter(f)))
			}
		}
	}
	if cfg.Telegram.Enabled && s.sender != nil {
		s.tgOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.tgCancel = cancel
			s.tgWG.Add(1)
			go func() {
				defer s.tgWG.Done()
				s.telegramWorker(ctx)
			}()
		})
		writers = append(writers, &telegramWriter{svc: s})
		if s.target.ChatID == 0 {
			fmt.Fprintln(Stderr(), "logx: telegram alerts enabled but telegram.chat_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newLineWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(zl)

	if oldFile != nil && oldFile != s.file {
		_ = oldFile.Close()
	}
}

func (s *Service) telegramWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.tgQueue:
			if err := s.sender.SendText(ctx, it.to, it.msg, &transport.SendOptions{DisablePreview: true}); err != nil {
				fmt.Fprintf(Stderr(), "logx: telegram alert failed: %v\n", err)
			}
		}
	}
}

func (s *Service) enqueueTelegram(to transport.ChatTarget, msg string) {
	// Never block the caller of a log line.
	select {
	case s.tgQueue <- telegramItem{to: to, msg: msg}:
	default:
	}
}
