// Package session runs one adaptive subtest: select, present, record, and
// re-estimate until a stop rule fires.
package session

import (
	"context"
	"math"

	"github.com/yungbote/neurobridge-cat/internal/assessment/bank"
	"github.com/yungbote/neurobridge-cat/internal/assessment/cat"
	"github.com/yungbote/neurobridge-cat/internal/assessment/estimate"
	"github.com/yungbote/neurobridge-cat/internal/assessment/exposure"
	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const (
	DefaultMinItems     = 8
	DefaultMaxItems     = 18
	DefaultSEMThreshold = 0.32
)

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseStopped    Phase = "stopped"
)

type StopReason string

const (
	StopNone       StopReason = ""
	StopExhausted  StopReason = "exhausted"
	StopMaxItems   StopReason = "max_items"
	StopPrecision  StopReason = "sem_threshold"
	StopFinalized  StopReason = "finalized"
	StopInvalidCfg StopReason = "invalid_item"
)

var (
	ErrNotRunning   = errors.Mark(errors.New("session is not running"), errors.ErrInvalidArgument)
	ErrAdministered = errors.Mark(errors.New("item already administered in this session"), errors.ErrInvalidArgument)
	ErrForeignItem  = errors.Mark(errors.New("item is not in this session's pool"), errors.ErrInvalidArgument)
	ErrNotSelected  = errors.Mark(errors.New("item was not the one Next selected"), errors.ErrInvalidArgument)
)

// Ledger is the exposure view a session reads and bumps. *exposure.Tracker
// satisfies it.
type Ledger interface {
	exposure.Counter
	Bump(ctx context.Context, itemID string)
}

type Config struct {
	Domain       string
	MinItems     int
	MaxItems     int
	SEMThreshold float64
	Estimator    estimate.Estimator
	Prior        estimate.Prior
	Policy       cat.Policy
	AnchorIDs    []string
	Seed         uint64
}

func (c Config) normalized() Config {
	if c.MinItems <= 0 {
		c.MinItems = DefaultMinItems
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	c.MaxItems = max(c.MaxItems, c.MinItems)
	if !(c.SEMThreshold > 0) || math.IsInf(c.SEMThreshold, 0) {
		c.SEMThreshold = DefaultSEMThreshold
	}
	if c.Estimator == nil {
		c.Estimator = estimate.NewMAP()
	}
	if c.Prior.SD <= 0 {
		c.Prior = estimate.DefaultPrior()
	}
	return c
}

// Session is not safe for concurrent use; one goroutine drives it.
type Session struct {
	cfg      Config
	log      *logger.Logger
	ledger   Ledger
	selector *cat.Selector
	pool     map[string]*assessment.Item

	phase     Phase
	stop      StopReason
	est       assessment.AbilityEstimate
	responses []assessment.Response
	obs       []estimate.Observation

	administered map[string]struct{}
	familyCounts map[string]int
	anchors      int
	// pending is the item Next handed out and Record has not yet seen.
	pending      *assessment.Item
}

// New validates the pool and prepares a session in PhaseNotStarted.
func New(cfg Config, pool []*assessment.Item, ledger Ledger, baseLog *logger.Logger) (*Session, error) {
	cfg = cfg.normalized()
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	byID := make(map[string]*assessment.Item, len(pool))
	for _, it := range pool {
		if err := bank.ValidateItem(it); err != nil {
			return nil, errors.Wrapf(err, "session %s", cfg.Domain)
		}
		byID[it.ID] = it
	}
	var counter exposure.Counter
	if ledger != nil {
		counter = ledger
	}
	return &Session{
		cfg:          cfg,
		log:          baseLog.With("service", "SubtestSession", "domain", cfg.Domain),
		ledger:       ledger,
		selector:     cat.NewSelector(pool, cfg.AnchorIDs, cfg.Policy, counter, cfg.Seed),
		pool:         byID,
		phase:        PhaseNotStarted,
		est:          cfg.Prior.Estimate(),
		administered: map[string]struct{}{},
		familyCounts: map[string]int{},
	}, nil
}

func (s *Session) Domain() string                       { return s.cfg.Domain }
func (s *Session) Phase() Phase                         { return s.phase }
func (s *Session) StopReason() StopReason               { return s.stop }
func (s *Session) Estimate() assessment.AbilityEstimate { return s.est }
func (s *Session) N() int                               { return len(s.responses) }
func (s *Session) AnchorsAdministered() int             { return s.anchors }
func (s *Session) IsAnchor(itemID string) bool          { return s.selector.IsAnchor(itemID) }

// Next returns the next item to present, or nil once the session has stopped.
func (s *Session) Next(ctx context.Context) (*assessment.Item, cat.Trace) {
	switch s.phase {
	case PhaseStopped:
		return nil, cat.Trace{}
	case PhaseNotStarted:
		s.phase = PhaseRunning
		s.log.Debug("subtest started", "pool", len(s.pool), "estimator", s.cfg.Estimator.Kind())
	}
	if reason, stop := s.stopRule(); stop {
		s.halt(reason)
		return nil, cat.Trace{}
	}
	it, tr := s.selector.Next(ctx, cat.State{
		Theta:               s.est.Theta,
		Administered:        s.administered,
		FamilyCounts:        s.familyCounts,
		AnchorsAdministered: s.anchors,
		N:                   len(s.responses),
	})
	if it == nil {
		s.halt(StopExhausted)
		return nil, tr
	}
	s.pending = it
	return it, tr
}

// Record appends the response, bumps exposure, and re-estimates from the full
// response log. Only the item the last Next returned is accepted. A nil
// correct is kept in the log but not scored. The stop rules are applied
// afterwards, so a session never holds more than MaxItems responses.
func (s *Session) Record(ctx context.Context, it *assessment.Item, correct *bool, rtMs *float64) (assessment.AbilityEstimate, error) {
	if s.phase != PhaseRunning {
		return s.est, ErrNotRunning
	}
	if it == nil {
		return s.est, errors.Mark(errors.New("nil item"), errors.ErrInvalidArgument)
	}
	if err := bank.ValidateItem(it); err != nil {
		s.halt(StopInvalidCfg)
		s.log.Error("malformed item during session", "item_id", it.ID, "error", err)
		return s.est, errors.Wrapf(err, "session %s", s.cfg.Domain)
	}
	if _, ok := s.pool[it.ID]; !ok {
		return s.est, errors.Wrapf(ErrForeignItem, "item %s", it.ID)
	}
	if _, dup := s.administered[it.ID]; dup {
		return s.est, errors.Wrapf(ErrAdministered, "item %s", it.ID)
	}
	if s.pending == nil || s.pending.ID != it.ID {
		return s.est, errors.Wrapf(ErrNotSelected, "item %s", it.ID)
	}
	s.pending = nil

	before := s.est.Theta
	s.administered[it.ID] = struct{}{}
	s.familyCounts[it.Family]++
	if s.selector.IsAnchor(it.ID) {
		s.anchors++
	}
	if s.ledger != nil {
		s.ledger.Bump(ctx, it.ID)
	}
	if correct != nil {
		s.obs = append(s.obs, estimate.Observation{Params: irt.ParamsOf(it), Correct: *correct})
	}

	res := s.cfg.Estimator.Estimate(s.obs, s.cfg.Prior, before)
	if res.Degenerate {
		s.log.Warn("posterior degenerate; using prior", "n", len(s.responses)+1)
	}
	s.est = res.AbilityEstimate

	s.responses = append(s.responses, assessment.Response{
		ItemID:      it.ID,
		Family:      it.Family,
		Correct:     copyBool(correct),
		RTMs:        copyFloat(rtMs),
		ThetaBefore: before,
		ThetaAfter:  s.est.Theta,
		SEMAfter:    s.est.SEM,
	})
	if reason, stop := s.stopRule(); stop {
		s.halt(reason)
	}
	return s.est, nil
}

// ShouldStop applies the stop rules without changing state. minItems always
// wins over the precision rule.
func (s *Session) ShouldStop() bool {
	if s.phase == PhaseStopped {
		return true
	}
	_, stop := s.stopRule()
	return stop
}

func (s *Session) stopRule() (StopReason, bool) {
	n := len(s.responses)
	if n < s.cfg.MinItems {
		return StopNone, false
	}
	if n >= s.cfg.MaxItems {
		return StopMaxItems, true
	}
	if s.est.SEM <= s.cfg.SEMThreshold {
		return StopPrecision, true
	}
	return StopNone, false
}

func (s *Session) halt(reason StopReason) {
	if s.phase == PhaseStopped {
		return
	}
	s.phase = PhaseStopped
	s.stop = reason
	s.pending = nil
	s.log.Debug("subtest stopped",
		"reason", reason,
		"n", len(s.responses),
		"theta", s.est.Theta,
		"sem", s.est.SEM,
		"anchors", s.anchors,
	)
}

// Finalize stops the session if still running and returns its summary.
func (s *Session) Finalize() assessment.DomainSummary {
	if s.phase != PhaseStopped {
		s.halt(StopFinalized)
	}
	responses := make([]assessment.Response, len(s.responses))
	copy(responses, s.responses)
	return assessment.DomainSummary{
		Domain:    s.cfg.Domain,
		N:         len(s.responses),
		Theta:     s.est.Theta,
		SEM:       s.est.SEM,
		Responses: responses,
	}
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
