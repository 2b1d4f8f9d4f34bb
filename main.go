package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wordwarden/wordwarden/internal/classifier"
	"github.com/wordwarden/wordwarden/internal/config"
	"github.com/wordwarden/wordwarden/internal/db/sqlite"
	"github.com/wordwarden/wordwarden/internal/infra"
	"github.com/wordwarden/wordwarden/internal/moderation"
	"github.com/wordwarden/wordwarden/internal/observability"
	"github.com/wordwarden/wordwarden/internal/ratelimit"
	"github.com/wordwarden/wordwarden/internal/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.WwFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	recoverable(func() {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		infra.EnsureWorkDir(cfg.DotPath)
		if err := observability.Init(ctx, cfg.MetricsListenAddr); err != nil {
			log.WithError(err).Fatalln("cant initialize observability")
		}

		ledger, err := sqlite.NewLedger(sqlite.LedgerConfig{
			DBPath:            cfg.DBPath(),
			MinConns:          cfg.Pool.MinConns,
			MaxConns:          cfg.Pool.MaxConns,
			AcquireTimeout:    cfg.Pool.AcquireTimeout,
			FirstBanDuration:  cfg.BanRules.FirstBanDuration,
			SecondBanDuration: cfg.BanRules.SecondBanDuration,
			ThirdBanDuration:  cfg.BanRules.ThirdBanDuration,
			ResetHour:         cfg.BanRules.ResetHour,
			RetentionDays:     cfg.BanRules.RetentionDays,
			MaxTextLen:        cfg.Moderation.MaxStoredTextLen,
		})
		if err != nil {
			log.WithError(err).Fatalln("cant open violation ledger")
		}
		defer func() {
			if err := ledger.Close(); err != nil {
				log.WithError(err).Errorln("cant close ledger")
			}
		}()

		words := cfg.Moderation.ForbiddenWords
		if len(words) == 0 {
			words = moderation.DefaultWords()
		}
		matcher := moderation.NewMatcher(words)

		client := classifier.NewClient(
			newDetector(cfg),
			classifier.NewCache(cfg.Cache.TTL, cfg.Cache.MaxEntries),
			ratelimit.NewLimiter(cfg.RateLimit.MaxPerMinute, cfg.RateLimit.MaxPerHour, cfg.RateLimit.FailureCooldown),
			retry.NewPolicy(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay),
			cfg.RateLimit.MaxShortWait,
		)

		orchestrator := moderation.NewOrchestrator(matcher, client, ledger, cfg.Moderation)
		go orchestrator.RunRetentionSweeper(ctx, time.Hour, cfg.BanRules.RetentionDays)

		go func() {
			if _, ok := <-infra.MonitorExecutable(ctx); ok {
				log.Errorln("executable file was modified")
				cancel()
			}
		}()

		if err := runEventLoop(ctx, orchestrator); err != nil {
			log.WithError(err).Errorln("event loop stopped")
		}
	})

	os.Exit(0)
}

// newDetector picks the classification backend: the HTTP endpoint when
// configured, otherwise the LLM fallback.
func newDetector(cfg config.Config) classifier.Detector {
	if cfg.API.Endpoint != "" {
		return classifier.NewAPIDetector(cfg.API.Endpoint, cfg.API.Timeout)
	}
	if cfg.LLM.APIKey == "" {
		log.Fatalln("no classification backend configured")
	}
	return classifier.NewLLMDetector(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, log.WithField("context", "llm"))
}

// stdinEvent adapts one input line to the moderation pipeline. The platform
// side effects are no-ops here; a real integration implements them against
// its own chat API.
type stdinEvent struct {
	groupID, userID string
}

func (e *stdinEvent) GetGroupID() string  { return e.groupID }
func (e *stdinEvent) GetUserID() string   { return e.userID }
func (e *stdinEvent) GetUserName() string { return e.userID }
func (e *stdinEvent) GetRole() string     { return "" }

func (e *stdinEvent) DeleteMessage(ctx context.Context) error { return nil }

func (e *stdinEvent) SetBan(ctx context.Context, duration time.Duration) error { return nil }

// runEventLoop reads "group user text..." lines from stdin and moderates each
// one, logging the decision. It is the reference wiring of the pipeline for
// deployments without a platform adapter.
func runEventLoop(ctx context.Context, orchestrator *moderation.Orchestrator) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Infoln("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
			if len(parts) < 3 {
				log.WithField("line", line).Warnln("expected: <group> <user> <text>")
				continue
			}
			ev := &stdinEvent{groupID: parts[0], userID: parts[1]}
			decision, err := orchestrator.Moderate(ctx, ev, parts[2])
			if err != nil {
				log.WithError(err).Errorln("cant moderate message")
				continue
			}
			logDecision(ev, decision)
		}
	}
}

func logDecision(ev *stdinEvent, decision *moderation.Decision) {
	entry := log.WithField("group", ev.groupID).WithField("user", ev.userID)
	switch decision.Outcome {
	case moderation.OutcomeClean:
		entry.Infoln("clean")
	case moderation.OutcomeUnknown:
		entry.Warnln("classification unavailable, leaving message alone")
	case moderation.OutcomeSkipped:
		entry.Debugln("skipped by cooldown")
	case moderation.OutcomeViolation:
		entry.WithField("tier", decision.Tier).
			WithField("duration", decision.Duration.String()).
			WithField("words", strings.Join(decision.MatchedWords, ",")).
			Infoln("violation")
	}
}

var restartDelay = 5 * time.Second

// recoverable runs f and, on panic, restarts it after a short delay. It
// rejoins synchronously and returns only once f completes without panicking,
// so the caller's exit path cannot tear down a restarted run.
func recoverable(f func()) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf(`panic with message: %s, %s\n`, err, identifyPanic())
			time.Sleep(restartDelay)
			recoverable(f)
		}
	}()
	log.Debug("going recoverable")
	f()
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}

	return fmt.Sprintf("pc:%x", pc)
}
