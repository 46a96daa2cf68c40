// Package dispatch is the per-request core: one inbound utterance is
// selected, trust-gated, executed, and synthesized into a response.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/executor"
	"switchboard/internal/expert"
	"switchboard/internal/trust"

	"github.com/google/uuid"
)

const defaultConcurrency = 5

// CapabilitySource resolves descriptors for winners. The registry's
// snapshot semantics guarantee a consistent view per request.
type CapabilitySource interface {
	Get(name string) (domain.Descriptor, bool)
}

// Searcher is the read-only fallback used when no capability wins.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Config holds all dependencies for the pipeline.
type Config struct {
	Capabilities CapabilitySource
	Selector     *expert.Selector
	Gate         *trust.Gate
	Executor     *executor.Executor
	Synth        domain.Synthesizer
	Searcher     Searcher // optional
	Audit        domain.AuditLogger
	Confirm      trust.ConfirmFunc // optional: one-time confirmation prompt
	Bus          domain.MessageBus
	Logger       *slog.Logger
	Concurrency  int
}

// Pipeline wires selection, trust gating, execution, and synthesis for
// each inbound envelope. Requests from different users are independent;
// within one request the order is fixed: classify, check, log, execute.
type Pipeline struct {
	capabilities CapabilitySource
	selector     *expert.Selector
	gate         *trust.Gate
	executor     *executor.Executor
	synth        domain.Synthesizer
	searcher     Searcher
	audit        domain.AuditLogger
	confirmFn    trust.ConfirmFunc
	bus          domain.MessageBus
	logger       *slog.Logger
	concurrency  int
}

func New(cfg Config) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Pipeline{
		capabilities: cfg.Capabilities,
		selector:     cfg.Selector,
		gate:         cfg.Gate,
		executor:     cfg.Executor,
		synth:        cfg.Synth,
		searcher:     cfg.Searcher,
		audit:        cfg.Audit,
		confirmFn:    cfg.Confirm,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
	}
}

// Run consumes inbound messages from the bus and dispatches them with
// bounded concurrency. Blocks until the context is cancelled or the
// bus closes.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("dispatcher started", "concurrency", p.concurrency)

	sem := make(chan struct{}, p.concurrency)
	inbound := p.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dispatcher stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				p.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				out := p.Dispatch(ctx, m)
				p.bus.SendOutbound(out)
			}(msg)
		}
	}
}

// Dispatch processes one normalized envelope end to end and always
// returns something renderable: a result, a denial explanation, or the
// no-match fallback.
func (p *Pipeline) Dispatch(ctx context.Context, msg domain.InboundMessage) domain.OutboundMessage {
	reply := func(content string) domain.OutboundMessage {
		return domain.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: content}
	}

	outcome := p.selector.Select(msg.Content, msg.UserID)
	outcome.RequestID = uuid.NewString()

	if outcome.Winner == nil {
		return reply(p.fallback(ctx, outcome))
	}

	d, ok := p.capabilities.Get(outcome.Winner.Capability)
	if !ok {
		// Winner vanished between selection and lookup (hot reload).
		p.logger.Warn("winning capability disappeared before gating",
			"capability", outcome.Winner.Capability,
			"request_id", outcome.RequestID,
		)
		return reply(p.fallback(ctx, outcome))
	}

	decision, err := p.gate.Authorize(ctx, outcome, d)
	if err != nil {
		p.logger.Error("trust gate error", "err", err, "request_id", outcome.RequestID)
		return reply(p.synth.Denied(outcome, domain.DecisionDeniedNoAllowlist))
	}

	if decision.Decision == domain.DecisionDeniedNoAllowlist && p.confirmFn != nil {
		decision = p.tryConfirmOnce(ctx, outcome, d, decision)
	}

	if decision.Decision != domain.DecisionAllowed {
		return reply(p.synth.Denied(outcome, decision.Decision))
	}

	result, err := p.executor.Execute(ctx, executor.Request{
		RequestID:  outcome.RequestID,
		UserID:     outcome.UserID,
		Capability: d,
		Operation:  outcome.Winner.Operation,
		Params:     outcome.Winner.Params,
	})
	if err != nil {
		var execErr *domain.ExecError
		if !errors.As(err, &execErr) {
			execErr = &domain.ExecError{Kind: domain.ErrUpstreamUnavailable, Detail: err.Error()}
		}
		return reply(p.synth.Failure(outcome, execErr))
	}

	return reply(p.synth.Success(outcome, *result))
}

// tryConfirmOnce asks the user to approve this single action. A denial
// or prompt failure leaves the original decision standing.
func (p *Pipeline) tryConfirmOnce(ctx context.Context, outcome domain.SelectionOutcome, d domain.Descriptor, denied trust.Decision) trust.Decision {
	question := "Allow " + d.Name + " to perform a state-changing action for this request? (one-time approval)"
	confirmed, err := p.confirmFn(ctx, question)
	if err != nil {
		p.logger.Warn("confirmation prompt failed", "err", err, "request_id", outcome.RequestID)
		return denied
	}
	if !confirmed {
		return denied
	}

	dec, err := p.gate.ConfirmOnce(ctx, outcome, d)
	if err != nil {
		p.logger.Error("confirm-once audit failed", "err", err, "request_id", outcome.RequestID)
		return denied
	}
	return dec
}

// fallback records the no-winner selection and routes to the read-only
// search. No trust or execution record is produced on this path.
func (p *Pipeline) fallback(ctx context.Context, outcome domain.SelectionOutcome) string {
	rec := domain.AuditRecord{
		RequestID: outcome.RequestID,
		UserID:    outcome.UserID,
		Stage:     domain.StageSelection,
		Outcome:   domain.OutcomeNoWinner,
		CreatedAt: time.Now(),
	}
	if err := p.audit.Record(ctx, rec); err != nil {
		p.logger.Error("audit write failed", "err", err, "request_id", outcome.RequestID)
	}

	var summary string
	if p.searcher != nil {
		s, err := p.searcher.Search(ctx, outcome.Utterance)
		if err != nil {
			p.logger.Warn("fallback search failed", "err", err, "request_id", outcome.RequestID)
		} else {
			summary = s
		}
	}
	return p.synth.NoMatch(outcome.Utterance, summary)
}
