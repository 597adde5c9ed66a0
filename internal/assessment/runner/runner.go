// Package runner walks a respondent through a plan: it builds a subtest per
// node, feeds items to the presenter, archives the event log and, once every
// node has finished, produces the composite report.
package runner

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-cat/internal/assessment/bank"
	"github.com/yungbote/neurobridge-cat/internal/assessment/cat"
	"github.com/yungbote/neurobridge-cat/internal/assessment/estimate"
	"github.com/yungbote/neurobridge-cat/internal/assessment/exposure"
	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
	"github.com/yungbote/neurobridge-cat/internal/assessment/scoring"
	"github.com/yungbote/neurobridge-cat/internal/assessment/session"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/observability"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

// Respondent identifies the test-taker. AgeYears and AgeBandID feed the
// scorer; ID only ever leaves the process hashed.
type Respondent struct {
	ID        string
	AgeYears  *float64
	AgeBandID string
}

type NodeResult struct {
	NodeID               string                   `json:"nodeId"`
	Domain               string                   `json:"domain"`
	Mode                 Mode                     `json:"mode"`
	StopReason           string                   `json:"stopReason"`
	ExcludeFromComposite bool                     `json:"excludeFromComposite,omitempty"`
	Summary              assessment.DomainSummary `json:"summary"`
}

type Result struct {
	SessionID uuid.UUID       `json:"sessionId"`
	PlanID    string          `json:"planId"`
	FormID    string          `json:"formId,omitempty"`
	Seed      uint64          `json:"seed"`
	Nodes     []NodeResult    `json:"nodes"`
	Report    *scoring.Report `json:"report,omitempty"`
}

// Summaries returns one summary per scored domain, merging nodes that share a
// domain.
func (r *Result) Summaries() []assessment.DomainSummary {
	var parts []assessment.DomainSummary
	for _, n := range r.Nodes {
		if !n.ExcludeFromComposite {
			parts = append(parts, n.Summary)
		}
	}
	return MergeSummaries(parts)
}

type Deps struct {
	Bank       *bank.Bank
	Forms      *bank.FormSet
	Exclusions ExclusionSource
	Ledger     *exposure.Tracker
	Scorer     *scoring.Scorer
	Recorder   Recorder
	Metrics    *observability.Metrics
	Log        *logger.Logger
}

type Runner struct {
	bank       *bank.Bank
	forms      *bank.FormSet
	exclusions ExclusionSource
	ledger     *exposure.Tracker
	scorer     *scoring.Scorer
	recorder   Recorder
	metrics    *observability.Metrics
	log        *logger.Logger
	tracer     trace.Tracer
}

func New(d Deps) *Runner {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	rec := d.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	ledger := d.Ledger
	if ledger == nil {
		ledger = exposure.NewTracker(exposure.NewMemory(), log, d.Metrics)
	}
	scorer := d.Scorer
	if scorer == nil {
		scorer = scoring.NewScorer(nil, 0, log)
	}
	return &Runner{
		bank:       d.Bank,
		forms:      d.Forms,
		exclusions: d.Exclusions,
		ledger:     ledger,
		scorer:     scorer,
		recorder:   rec,
		metrics:    d.Metrics,
		log:        log.With("service", "AssessmentRunner"),
		tracer:     observability.Tracer(),
	}
}

// SessionSeed derives a reproducible per-respondent seed from the plan seed.
// The top bit is cleared so the value fits a signed 64-bit column.
func SessionSeed(planSeed uint64, respondentID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(respondentID))
	return (planSeed ^ h.Sum64()) & math.MaxInt64
}

// run is the mutable state of one Run call.
type run struct {
	r       *Runner
	plan    *Plan
	id      uuid.UUID
	formID  string
	seed    uint64
	exclude map[string]struct{}
	seq     int
	log     *logger.Logger
}

// Run administers every node in order. It returns errors.ErrAborted when ctx
// is cancelled between items and errors.ErrAssessmentFailed for configuration
// or persistence failures; neither produces a report.
func (r *Runner) Run(ctx context.Context, plan *Plan, who Respondent, p Presenter) (*Result, error) {
	if r.bank == nil || plan == nil || p == nil {
		return nil, errors.Mark(errors.New("runner needs a bank, a plan and a presenter"), errors.ErrInvalidArgument)
	}
	seed := SessionSeed(plan.Seed, who.ID)
	st := &run{
		r:      r,
		plan:   plan,
		id:     uuid.New(),
		formID: r.forms.Assign(strconv.FormatUint(seed, 10)),
		seed:   seed,
	}
	st.log = r.log.With("session_id", st.id.String(), "plan_id", plan.ID)

	ctx, span := r.tracer.Start(ctx, "assessment.run", trace.WithAttributes(
		attribute.String("plan.id", plan.ID),
		attribute.String("form.id", st.formID),
		attribute.String("session.id", st.id.String()),
	))
	defer span.End()

	res, err := st.execute(ctx, who, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (st *run) execute(ctx context.Context, who Respondent, p Presenter) (*Result, error) {
	r := st.r
	now := time.Now().UTC()
	row := &assessment.AssessmentSession{
		ID:             st.id,
		PlanID:         st.plan.ID,
		FormID:         st.formID,
		RespondentHash: logger.HashID(who.ID),
		Seed:           st.seed,
		Status:         assessment.SessionRunning,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.recorder.CreateSession(ctx, row); err != nil {
		return nil, st.fail(ctx, errors.Mark(errors.Wrap(err, "create session"), errors.ErrPersistence))
	}

	exclude := map[string]struct{}{}
	if r.exclusions != nil {
		ids, err := r.exclusions.ExcludedIDs(ctx)
		if err != nil {
			return nil, st.fail(ctx, errors.Mark(errors.Wrap(err, "load exclusions"), errors.ErrPersistence))
		}
		for _, id := range ids {
			exclude[id] = struct{}{}
		}
	}
	st.exclude = exclude
	st.log.Info("assessment started", "form_id", st.formID, "nodes", len(st.plan.Nodes), "excluded", len(exclude))

	res := &Result{SessionID: st.id, PlanID: st.plan.ID, FormID: st.formID, Seed: st.seed}
	for i := range st.plan.Nodes {
		node := &st.plan.Nodes[i]
		if err := ctx.Err(); err != nil {
			return nil, st.abort(ctx, err)
		}
		nr, err := st.runNode(ctx, node, p)
		if err != nil {
			if errors.Is(err, errors.ErrAborted) {
				return nil, st.abort(ctx, err)
			}
			return nil, st.fail(ctx, err)
		}
		res.Nodes = append(res.Nodes, nr)
	}

	summaries := res.Summaries()
	if len(summaries) > 0 {
		rep, err := r.scorer.Score(summaries, scoring.Options{AgeYears: who.AgeYears, AgeBandID: who.AgeBandID})
		if err != nil {
			return nil, st.fail(ctx, errors.Mark(err, errors.ErrConfig))
		}
		res.Report = &rep
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, st.fail(ctx, errors.Wrap(err, "encode report"))
	}
	if err := r.recorder.CompleteSession(ctx, st.id, datatypes.JSON(raw)); err != nil {
		return nil, st.fail(ctx, errors.Mark(errors.Wrap(err, "complete session"), errors.ErrPersistence))
	}
	r.metrics.IncAssessment(string(assessment.SessionCompleted))
	if res.Report != nil {
		st.log.Info("assessment completed", "composite_index", res.Report.Composite.Index, "composite_sem", res.Report.Composite.SEM)
	}
	return res, nil
}

func (st *run) runNode(ctx context.Context, node *Node, p Presenter) (NodeResult, error) {
	started := time.Now()
	ctx, span := st.r.tracer.Start(ctx, "assessment.node", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.domain", node.Domain),
		attribute.String("node.mode", string(node.Mode)),
	))
	defer span.End()

	items, err := st.pool(node)
	if err != nil {
		return NodeResult{}, err
	}
	if err := st.event(ctx, node, assessment.EventNodeStart, "", map[string]any{
		"mode":   node.Mode,
		"pool":   len(items),
		"formId": st.formID,
	}); err != nil {
		return NodeResult{}, err
	}

	var nr NodeResult
	switch node.Mode {
	case ModeCAT:
		nr, err = st.runCAT(ctx, node, items, p)
	case ModeFixed:
		nr, err = st.runFixed(ctx, node, items, p)
	case ModeSpeed:
		nr, err = st.runSpeed(ctx, node, items, p)
	default:
		err = planErr("node %s: unknown mode %q", node.ID, node.Mode)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return NodeResult{}, err
	}
	nr.NodeID, nr.Domain, nr.Mode = node.ID, node.Domain, node.Mode
	nr.ExcludeFromComposite = node.ExcludeFromComposite

	if err := st.event(ctx, node, assessment.EventNodeEnd, "", map[string]any{
		"n":          nr.Summary.N,
		"theta":      nr.Summary.Theta,
		"sem":        nr.Summary.SEM,
		"stopReason": nr.StopReason,
	}); err != nil {
		return NodeResult{}, err
	}
	span.SetAttributes(
		attribute.Int("node.items", nr.Summary.N),
		attribute.Float64("node.theta", nr.Summary.Theta),
		attribute.Float64("node.sem", nr.Summary.SEM),
		attribute.String("node.stop_reason", nr.StopReason),
	)
	st.r.metrics.ObserveSubtestStop(node.Domain, nr.StopReason, nr.Summary.SEM)
	st.r.metrics.ObserveNode(node.Domain, string(node.Mode), time.Since(started))
	st.log.Debug("node finished", "node_id", node.ID, "n", nr.Summary.N, "theta", nr.Summary.Theta, "sem", nr.Summary.SEM, "stop", nr.StopReason)
	return nr, nil
}

// pool resolves a node's items: the explicit list when given, otherwise the
// domain restricted to the assigned form; exclusions always apply.
func (st *run) pool(node *Node) ([]*assessment.Item, error) {
	b := st.r.bank
	var items []*assessment.Item
	if len(node.ItemIDs) > 0 {
		resolved, err := b.Resolve(node.Domain, node.ItemIDs)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", node.ID)
		}
		for _, it := range resolved {
			if _, skip := st.exclude[it.ID]; !skip {
				items = append(items, it)
			}
		}
	} else {
		items = b.Pool(node.Domain, st.r.forms.AllowedItems(st.formID, node.Domain), st.exclude)
	}
	if len(items) == 0 {
		return nil, planErr("node %s: no %s items available", node.ID, node.Domain)
	}
	return items, nil
}

func (st *run) runCAT(ctx context.Context, node *Node, items []*assessment.Item, p Presenter) (NodeResult, error) {
	blueprint := node.Blueprint
	if len(blueprint) == 0 {
		blueprint = bank.DeriveBlueprint(items)
	}
	sess, err := session.New(session.Config{
		Domain:       node.Domain,
		MinItems:     node.MinItems,
		MaxItems:     node.MaxItems,
		SEMThreshold: node.SEMThreshold,
		Estimator:    node.estimator(),
		Prior:        node.prior(),
		Policy: cat.Policy{
			TopK:        node.TopK,
			MaxExposure: node.MaxExposure,
			Blueprint:   blueprint,
			Anchors:     node.anchors,
		},
		AnchorIDs: st.r.forms.Anchors(st.formID, node.Domain),
		Seed:      st.seed ^ nodeSalt(node.ID),
	}, items, st.r.ledger, st.log)
	if err != nil {
		return NodeResult{}, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return NodeResult{}, errors.Mark(errors.Wrapf(err, "node %s", node.ID), errors.ErrAborted)
		}
		it, tr := sess.Next(ctx)
		if it == nil {
			break
		}
		current := sess.Estimate()
		out, err := present(ctx, p, node, it, current)
		if err != nil {
			return NodeResult{}, err
		}
		est, err := st.record(ctx, node, it, func(ctx context.Context) (assessment.AbilityEstimate, error) {
			return sess.Record(ctx, it, out.Correct, out.RTMs)
		})
		if err != nil {
			return NodeResult{}, err
		}
		if err := st.event(ctx, node, assessment.EventItem, it.ID, itemPayload(out, current, est, sess.IsAnchor(it.ID), &tr)); err != nil {
			return NodeResult{}, err
		}
	}
	return NodeResult{StopReason: string(sess.StopReason()), Summary: sess.Finalize()}, nil
}

// runFixed presents items in plan order and estimates once at the end.
func (st *run) runFixed(ctx context.Context, node *Node, items []*assessment.Item, p Presenter) (NodeResult, error) {
	prior := node.prior()
	start := prior.Estimate()
	responses := make([]assessment.Response, 0, len(items))
	obs := make([]estimate.Observation, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return NodeResult{}, errors.Mark(errors.Wrapf(err, "node %s", node.ID), errors.ErrAborted)
		}
		out, err := present(ctx, p, node, it, start)
		if err != nil {
			return NodeResult{}, err
		}
		if _, err := st.record(ctx, node, it, func(ctx context.Context) (assessment.AbilityEstimate, error) {
			if err := bank.ValidateItem(it); err != nil {
				return start, err
			}
			st.r.ledger.Bump(ctx, it.ID)
			return start, nil
		}); err != nil {
			return NodeResult{}, err
		}
		if out.Correct != nil {
			obs = append(obs, estimate.Observation{Params: irt.ParamsOf(it), Correct: *out.Correct})
		}
		responses = append(responses, assessment.Response{
			ItemID:      it.ID,
			Family:      it.Family,
			Correct:     out.Correct,
			RTMs:        out.RTMs,
			ThetaBefore: start.Theta,
		})
		if err := st.event(ctx, node, assessment.EventItem, it.ID, itemPayload(out, start, start, false, nil)); err != nil {
			return NodeResult{}, err
		}
	}
	est := node.estimator().Estimate(obs, prior, prior.Mean)
	for i := range responses {
		responses[i].ThetaAfter = est.Theta
		responses[i].SEMAfter = est.SEM
	}
	return NodeResult{
		StopReason: string(session.StopExhausted),
		Summary: assessment.DomainSummary{
			Domain:    node.Domain,
			N:         len(responses),
			Theta:     est.Theta,
			SEM:       est.SEM,
			Responses: responses,
		},
	}, nil
}

// runSpeed presents timed pages and converts the summed tally to a theta proxy.
func (st *run) runSpeed(ctx context.Context, node *Node, items []*assessment.Item, p Presenter) (NodeResult, error) {
	start := node.prior().Estimate()
	var total Tally
	responses := make([]assessment.Response, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return NodeResult{}, errors.Mark(errors.Wrapf(err, "node %s", node.ID), errors.ErrAborted)
		}
		out, err := present(ctx, p, node, it, start)
		if err != nil {
			return NodeResult{}, err
		}
		if _, err := st.record(ctx, node, it, func(ctx context.Context) (assessment.AbilityEstimate, error) {
			st.r.ledger.Bump(ctx, it.ID)
			return start, nil
		}); err != nil {
			return NodeResult{}, err
		}
		switch {
		case out.Tally != nil:
			total.Attempted += max(0, out.Tally.Attempted)
			total.Correct += max(0, min(out.Tally.Correct, out.Tally.Attempted))
		case out.Correct != nil:
			total.Attempted++
			if *out.Correct {
				total.Correct++
			}
		}
		responses = append(responses, assessment.Response{
			ItemID:      it.ID,
			Family:      it.Family,
			Correct:     out.Correct,
			RTMs:        out.RTMs,
			ThetaBefore: start.Theta,
		})
		if err := st.event(ctx, node, assessment.EventItem, it.ID, itemPayload(out, start, start, false, nil)); err != nil {
			return NodeResult{}, err
		}
	}
	est := estimate.SpeedProxy(total.Attempted, total.Correct)
	for i := range responses {
		responses[i].ThetaAfter = est.Theta
		responses[i].SEMAfter = est.SEM
	}
	return NodeResult{
		StopReason: string(session.StopExhausted),
		Summary: assessment.DomainSummary{
			Domain:    node.Domain,
			N:         total.Attempted,
			Theta:     est.Theta,
			SEM:       est.SEM,
			Responses: responses,
		},
	}, nil
}

func present(ctx context.Context, p Presenter, node *Node, it *assessment.Item, current assessment.AbilityEstimate) (Outcome, error) {
	out, err := p.Present(ctx, node.Domain, it, current)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, errors.Mark(errors.Wrapf(err, "present %s", it.ID), errors.ErrAborted)
		}
		return Outcome{}, errors.Wrapf(err, "present %s", it.ID)
	}
	return out, nil
}

// record wraps one response in a span and counts it.
func (st *run) record(ctx context.Context, node *Node, it *assessment.Item, fn func(context.Context) (assessment.AbilityEstimate, error)) (assessment.AbilityEstimate, error) {
	ctx, span := st.r.tracer.Start(ctx, "assessment.record", trace.WithAttributes(
		attribute.String("item.id", it.ID),
		attribute.String("node.id", node.ID),
	))
	defer span.End()
	est, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return est, err
	}
	span.SetAttributes(attribute.Float64("theta", est.Theta), attribute.Float64("sem", est.SEM))
	st.r.metrics.IncItemAdministered(node.Domain, string(node.Mode))
	return est, nil
}

func (st *run) event(ctx context.Context, node *Node, typ assessment.EventType, itemID string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", typ)
	}
	st.seq++
	ev := &assessment.AssessmentEvent{
		ID:        uuid.New(),
		SessionID: st.id,
		Seq:       st.seq,
		Type:      typ,
		NodeID:    node.ID,
		Domain:    node.Domain,
		ItemID:    itemID,
		Payload:   datatypes.JSON(raw),
		CreatedAt: time.Now().UTC(),
	}
	if err := st.r.recorder.AppendEvent(ctx, ev); err != nil {
		return errors.Mark(errors.Wrapf(err, "append %s event", typ), errors.ErrPersistence)
	}
	return nil
}

func itemPayload(out Outcome, before, after assessment.AbilityEstimate, anchor bool, tr *cat.Trace) map[string]any {
	payload := map[string]any{
		"correct":     out.Correct,
		"rtMs":        out.RTMs,
		"thetaBefore": before.Theta,
		"thetaAfter":  after.Theta,
		"semAfter":    after.SEM,
	}
	if anchor {
		payload["anchor"] = true
	}
	if len(out.Meta) > 0 {
		payload["meta"] = out.Meta
	}
	if out.Tally != nil {
		payload["tally"] = out.Tally
	}
	if tr != nil {
		payload["pool"] = tr.Pool
		payload["eligible"] = tr.Eligible
		if tr.ExposureRelaxed {
			payload["exposureRelaxed"] = true
		}
	}
	return payload
}

// abort archives the session as aborted. Exposure bumps already made stand.
func (st *run) abort(ctx context.Context, cause error) error {
	err := cause
	if !errors.Is(err, errors.ErrAborted) {
		err = errors.Mark(err, errors.ErrAborted)
	}
	st.finish(ctx, assessment.SessionAborted, err)
	st.log.Warn("assessment aborted", "error", err)
	return err
}

// fail archives the session as failed and returns the single terminal error.
func (st *run) fail(ctx context.Context, cause error) error {
	st.finish(ctx, assessment.SessionFailed, cause)
	st.log.Error("assessment failed", "error", cause)
	return errors.Mark(errors.Wrap(cause, errors.ErrAssessmentFailed.Error()), errors.ErrAssessmentFailed)
}

func (st *run) finish(ctx context.Context, status assessment.SessionStatus, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := st.r.recorder.FailSession(ctx, st.id, status, cause.Error()); err != nil {
		st.log.Warn("could not archive session status", "status", status, "error", err)
	}
	st.r.metrics.IncAssessment(string(status))
}

func nodeSalt(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}
