// Package moderation ties the local keyword matcher, the classification
// client and the violation ledger into one decision pipeline. It returns
// decisions; platform side effects (deletion, suspension, notices) are the
// caller's job.
package moderation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wordwarden/wordwarden/internal/classifier"
	"github.com/wordwarden/wordwarden/internal/config"
	"github.com/wordwarden/wordwarden/internal/db"
	"github.com/wordwarden/wordwarden/internal/observability"
)

// Event is the narrow view of a platform message the pipeline depends on.
// The platform collaborator implements it; the orchestrator only reads from
// it, leaving DeleteMessage and SetBan to the decision's consumer.
type Event interface {
	GetGroupID() string
	GetUserID() string
	GetUserName() string
	GetRole() string
	DeleteMessage(ctx context.Context) error
	SetBan(ctx context.Context, duration time.Duration) error
}

type Outcome int

const (
	// OutcomeClean: the upstream said the text is fine.
	OutcomeClean Outcome = iota
	// OutcomeUnknown: classification could not be completed. Not clean;
	// the caller must leave the message unactioned for this check.
	OutcomeUnknown
	// OutcomeSkipped: the per-user cooldown gate suppressed the check.
	OutcomeSkipped
	// OutcomeViolation: a local or remote hit, recorded in the ledger.
	OutcomeViolation
)

// Decision is the data the platform collaborator acts on.
type Decision struct {
	Outcome      Outcome
	Tier         int
	Duration     time.Duration
	MatchedWords []string
	SourceText   string
	Source       string
	Severe       bool
	Exempt       bool
}

type Orchestrator struct {
	matcher *Matcher
	client  *classifier.Client
	ledger  db.Ledger
	cfg     config.Moderation

	cooldownMu sync.Mutex
	lastCheck  map[string]time.Time

	logger *log.Entry
	now    func() time.Time
}

func NewOrchestrator(matcher *Matcher, client *classifier.Client, ledger db.Ledger, cfg config.Moderation) *Orchestrator {
	return &Orchestrator{
		matcher:   matcher,
		client:    client,
		ledger:    ledger,
		cfg:       cfg,
		lastCheck: make(map[string]time.Time),
		logger:    log.WithField("object", "Orchestrator"),
		now:       time.Now,
	}
}

// Moderate runs the decision pipeline for one inbound message: per-user
// cooldown gate, local keyword check, then the classification client. Any
// positive verdict is recorded in the ledger before the decision returns.
// Ledger write errors propagate; dropping a violation must be the caller's
// explicit choice, never silent.
func (o *Orchestrator) Moderate(ctx context.Context, ev Event, text string) (*Decision, error) {
	observability.RecordCheck()

	if !o.isMonitored(ev.GetGroupID()) {
		return &Decision{Outcome: OutcomeSkipped}, nil
	}
	if !o.cfg.BypassCooldown && !o.passesCooldown(ev.GetUserID()) {
		return &Decision{Outcome: OutcomeSkipped}, nil
	}

	if o.cfg.LocalCheckOn {
		if words := o.matcher.Match(text); len(words) > 0 {
			return o.recordViolation(ctx, ev, words, text, "local")
		}
	}

	done := observability.StartClassification()
	verdict, ok := o.client.Classify(ctx, text)
	if !ok {
		done("unknown")
		return &Decision{Outcome: OutcomeUnknown}, nil
	}
	if !verdict.IsViolation {
		done("clean")
		return &Decision{Outcome: OutcomeClean}, nil
	}
	done("violation")

	sourceText := verdict.OriginalText
	if sourceText == "" {
		sourceText = text
	}
	return o.recordViolation(ctx, ev, verdict.MatchedTerms, sourceText, "remote")
}

func (o *Orchestrator) recordViolation(ctx context.Context, ev Event, words []string, text string, source string) (*Decision, error) {
	groupID := ev.GetGroupID()
	userID := ev.GetUserID()

	penalty, err := o.ledger.RecordViolation(ctx, groupID, userID, ev.GetUserName(), words, text)
	if err != nil {
		return nil, fmt.Errorf("record violation: %w", err)
	}
	observability.RecordViolation(source, groupID)

	decision := &Decision{
		Outcome:      OutcomeViolation,
		Tier:         penalty.Tier,
		Duration:     penalty.Duration,
		MatchedWords: words,
		SourceText:   text,
		Source:       source,
		Severe:       penalty.Severe,
		Exempt:       o.isExempt(ev.GetRole()),
	}
	if !o.cfg.AutoBanOn {
		decision.Duration = 0
	}
	if decision.Duration > 0 && !decision.Exempt {
		observability.RecordBan(groupID, strconv.Itoa(penalty.Tier))
	}

	o.logger.WithField("group", groupID).
		WithField("user", userID).
		WithField("tier", penalty.Tier).
		WithField("source", source).
		Info("violation recorded")
	return decision, nil
}

// isMonitored reports whether the group is under moderation. An empty
// whitelist monitors every group.
func (o *Orchestrator) isMonitored(groupID string) bool {
	if len(o.cfg.WhitelistGroups) == 0 {
		return true
	}
	for _, g := range o.cfg.WhitelistGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

func (o *Orchestrator) isExempt(role string) bool {
	for _, exempt := range o.cfg.ExemptRoles {
		if strings.EqualFold(role, exempt) {
			return true
		}
	}
	return false
}

// passesCooldown reports whether the user is past the per-user gate and, if
// so, stamps the check time. This gate is independent of the upstream API
// limiter and only throttles how often one user's messages are inspected.
func (o *Orchestrator) passesCooldown(userID string) bool {
	o.cooldownMu.Lock()
	defer o.cooldownMu.Unlock()

	now := o.now()
	if last, ok := o.lastCheck[userID]; ok && now.Sub(last) < o.cfg.UserCooldown {
		return false
	}
	if len(o.lastCheck) > 4096 {
		for id, last := range o.lastCheck {
			if now.Sub(last) >= o.cfg.UserCooldown {
				delete(o.lastCheck, id)
			}
		}
	}
	o.lastCheck[userID] = now
	return true
}

// RunRetentionSweeper deletes expired ledger rows every interval until ctx is
// cancelled. The upsert path already sweeps opportunistically; this catches
// quiet deployments where no new violations arrive.
func (o *Orchestrator) RunRetentionSweeper(ctx context.Context, interval time.Duration, retentionDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := o.now().AddDate(0, 0, -retentionDays).Format("2006-01-02")
			removed, err := o.ledger.CleanupBefore(ctx, cutoff)
			if err != nil {
				o.logger.WithError(err).Error("retention sweep failed")
				continue
			}
			if removed > 0 {
				o.logger.WithField("removed", removed).Debug("retention sweep")
			}
		}
	}
}
