package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/flowweave/flowweave/config"
	"github.com/flowweave/flowweave/internal/cache"
	"github.com/flowweave/flowweave/internal/llm"
	"github.com/flowweave/flowweave/internal/registry"
	"github.com/flowweave/flowweave/internal/telemetry"
)

// degradedConfidence is assigned to the minimal fallback plan substituted
// when the oracle fails.
const degradedConfidence = 0.2

// Request describes one planning turn.
type Request struct {
	// Intent is the user's natural-language request.
	Intent string
	// History is the conversation snapshot used for cache keying.
	History []string
	// Preselected narrows the capability listing to explicitly chosen
	// services.
	Preselected []string
	// Memory carries prior-turn state; nil starts a fresh session.
	Memory *Memory
	// Discovery holds concrete resource values used to pre-fill parameters.
	Discovery []DiscoveryResult
	// Approved marks the turn as an approval of the previously presented
	// ReadyForReview plan.
	Approved bool
}

// Planner orchestrates cache lookup, prompt construction, oracle invocation
// with bounded retry, and interpretation of the response into a protocol
// state.
type Planner struct {
	cfg      *config.Config
	provider llm.Provider
	cache    cache.Cache
	reg      registry.Registry
	metrics  *telemetry.Telemetry
	resolver *Resolver
	builder  *ContextBuilder
	logger   *log.Logger
}

// New creates a planner. All collaborators are injected; the cache client in
// particular is constructed once at process start and shared by reference.
func New(cfg *config.Config, provider llm.Provider, c cache.Cache, reg registry.Registry, metrics *telemetry.Telemetry) *Planner {
	return &Planner{
		cfg:      cfg,
		provider: provider,
		cache:    c,
		reg:      reg,
		metrics:  metrics,
		resolver: NewResolver(),
		builder:  NewContextBuilder(),
		logger:   log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// PlanTurn runs one planning turn and returns its protocol result. Oracle
// and parse failures degrade to an Error-state result; only registry
// unavailability is a hard error.
func (p *Planner) PlanTurn(ctx context.Context, req Request) (*ProtocolResult, error) {
	mem := req.Memory
	if mem == nil {
		mem = NewMemory()
	}

	// Approval forwards the reviewed plan unchanged, flagged for execution
	// handoff. No oracle call, no cache involvement.
	if req.Approved {
		if len(mem.LastPlan) == 0 {
			return nil, fmt.Errorf("approval received but no reviewed plan in memory")
		}
		res := &ProtocolResult{
			State:      StateReady,
			Steps:      mem.LastPlan,
			Confidence: planConfidence(mem.LastPlan, 0),
			Summary:    "Plan approved and handed off for execution.",
			Memory:     mem,
		}
		mem.Absorb(res, p.cfg.Planner.MaxMemorySize)
		p.metrics.RecordTurn(string(res.State))
		return res, nil
	}

	key := cache.Key(req.Intent, req.History)
	if p.cache != nil {
		if data, ok, err := p.cache.Get(ctx, key); err != nil {
			p.logger.Printf("cache get failed, continuing without: %v", err)
		} else if ok {
			var cached ProtocolResult
			if err := json.Unmarshal(data, &cached); err == nil {
				p.metrics.RecordCache(true)
				return &cached, nil
			}
			p.logger.Printf("cache entry for %s undecodable, treating as miss", key)
		}
		p.metrics.RecordCache(false)
	}

	nodes, err := p.reg.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", registry.ErrUnavailable, err)
	}
	snapshot := registry.NewSnapshot(nodes)

	pc := p.builder.Build(snapshot, req.Preselected, mem, req.Discovery)
	prompt := buildPlanningPrompt(req.Intent, pc, req.History)

	raw, err := p.invokeOracle(ctx, prompt)
	if err != nil {
		p.logger.Printf("oracle failed after retries: %v", err)
		return p.degraded(snapshot, mem, err), nil
	}

	resp, err := parseOracleResponse(raw)
	if err != nil {
		p.logger.Printf("oracle output unusable: %v", err)
		return p.degraded(snapshot, mem, err), nil
	}

	steps := p.resolver.Resolve(resp.Steps, snapshot, mem, req.Discovery)

	// A parsable response with no steps and nothing to clarify is as
	// unusable as malformed output; there is nothing to present for review.
	if len(steps) == 0 && p.pendingClarification(resp, mem) == nil {
		p.logger.Printf("oracle returned an empty plan with nothing to clarify")
		return p.degraded(snapshot, mem, fmt.Errorf("%w: empty plan", ErrMalformed)), nil
	}

	result := p.computeResult(resp, steps, mem)
	mem.Absorb(result, p.cfg.Planner.MaxMemorySize)
	result.Memory = mem

	if p.cache != nil && result.State != StateError {
		if data, err := json.Marshal(result); err == nil {
			if err := p.cache.Set(ctx, key, data, p.cfg.Planner.CacheTTL); err != nil {
				p.logger.Printf("cache set failed: %v", err)
			}
		}
	}

	p.metrics.RecordTurn(string(result.State))
	p.metrics.RecordSteps(len(result.Steps), 0)
	return result, nil
}

// invokeOracle calls the reasoning oracle with a fixed attempt count and
// fixed backoff, retrying connectivity failures only. Timeouts from the
// oracle are treated identically to connectivity failures.
func (p *Planner) invokeOracle(ctx context.Context, prompt string) (string, error) {
	model := p.cfg.LLM.Routing.Planning
	if model == "" {
		model = p.cfg.LLM.Routing.Fallback
	}
	attempts := p.cfg.Planner.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var out string
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		var inTokens, outTokens int64
		out, inTokens, outTokens, err = p.provider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
			"temperature": 0.3, // lower temperature for consistent planning
			"max_tokens":  2000,
		})
		p.metrics.RecordOracleLatency(time.Since(start))
		if err == nil {
			p.metrics.RecordOracleUsage(inTokens, outTokens, p.provider.CalculateCost(inTokens, outTokens, model))
			return out, nil
		}
		if !llm.IsRetryable(err) {
			return "", err
		}
		if attempt < attempts-1 {
			p.metrics.RecordOracleRetry()
			p.logger.Printf("oracle attempt %d/%d failed: %v", attempt+1, attempts, err)
			time.Sleep(p.cfg.Planner.RetryDelay)
		}
	}
	return "", err
}

// computeResult derives the protocol state in strict priority order:
// ClarificationNeeded > OAuthRequired > NeedsUserInput > ReadyForReview.
// The earliest-listed plausible state wins so no required gate is skipped.
func (p *Planner) computeResult(resp *rawResponse, steps []PlanStep, mem *Memory) *ProtocolResult {
	confidence := resp.Confidence
	if confidence == 0 {
		confidence = 0.8
	}
	confidence = planConfidence(steps, confidence)

	if clarification := p.pendingClarification(resp, mem); clarification != nil {
		return &ProtocolResult{
			State:         StateClarificationNeeded,
			Steps:         steps,
			Clarification: clarification,
			Confidence:    confidence,
			Summary:       resp.Summary,
		}
	}

	if reqs := p.pendingOAuth(resp, steps, mem); len(reqs) > 0 {
		// The plan is returned provisionally; no parameters are collected
		// until authorization is settled.
		return &ProtocolResult{
			State:             StateOAuthRequired,
			Steps:             steps,
			OAuthRequirements: reqs,
			Confidence:        confidence,
			Summary:           resp.Summary,
		}
	}

	if form := p.missingInputForm(resp, steps, mem); form != nil {
		return &ProtocolResult{
			State:      StateNeedsUserInput,
			Steps:      steps,
			SmartForm:  form,
			Confidence: confidence,
			Summary:    resp.Summary,
		}
	}

	return &ProtocolResult{
		State:      StateReadyForReview,
		Steps:      steps,
		Confidence: confidence,
		Summary:    resp.Summary,
		Review:     buildReview(resp, steps),
	}
}

// pendingClarification returns the clarification payload unless the user
// already disambiguated every competing group in a prior turn.
func (p *Planner) pendingClarification(resp *rawResponse, mem *Memory) *Clarification {
	var groups []ServiceGroup
	for _, g := range resp.ServiceGroups {
		if len(g.Options) < 2 {
			continue
		}
		if mem.HasChosen(g.Purpose) {
			continue
		}
		sg := ServiceGroup{Purpose: g.Purpose}
		for _, o := range g.Options {
			sg.Options = append(sg.Options, ServiceOption{NodeID: o.NodeID, Name: o.Name, UseCase: o.UseCase})
		}
		groups = append(groups, sg)
	}
	if len(groups) == 0 {
		return nil
	}
	question := resp.Question
	if question == "" {
		question = "Multiple services can handle this request. Which should the workflow use?"
	}
	return &Clarification{Question: question, ServiceGroups: groups}
}

// pendingOAuth lists services whose default authorization is unmet. The
// resolved steps are authoritative; oracle-supplied requirements only
// enrich the reason text.
func (p *Planner) pendingOAuth(resp *rawResponse, steps []PlanStep, mem *Memory) []OAuthRequirement {
	reasons := make(map[string]rawOAuth, len(resp.OAuth))
	for _, o := range resp.OAuth {
		reasons[o.NodeID] = o
	}
	seen := make(map[string]bool)
	var reqs []OAuthRequirement
	for _, s := range steps {
		if s.Kind != KindAction || s.Unresolved {
			continue
		}
		if s.DefaultAuth == "" || mem.IsAuthorized(s.NodeID) || seen[s.NodeID] {
			continue
		}
		seen[s.NodeID] = true
		req := OAuthRequirement{NodeID: s.NodeID, NodeName: s.NodeName, Method: s.DefaultAuth}
		if o, ok := reasons[s.NodeID]; ok {
			req.Reason = o.Reason
			if o.Method != "" {
				req.Method = o.Method
			}
		}
		if req.Reason == "" {
			req.Reason = fmt.Sprintf("%s requires %s authorization before this workflow can run", s.NodeName, req.Method)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

// missingInputForm builds a smart form for required parameters still
// unresolved after merging registry defaults, memory and discovery values.
// Parameters already collected in memory are never re-asked.
func (p *Planner) missingInputForm(resp *rawResponse, steps []PlanStep, mem *Memory) *SmartForm {
	var sections []FormSection
	for i := range steps {
		s := &steps[i]
		if s.Kind != KindAction {
			continue
		}
		var fields []FormField
		for _, meta := range s.ParameterMeta {
			if !meta.Required {
				continue
			}
			if v, ok := s.Parameters[meta.Name]; ok && !isEmptyValue(v) {
				continue
			}
			if v, ok := mem.Input(meta.Name); ok {
				if s.Parameters == nil {
					s.Parameters = make(map[string]interface{})
				}
				s.Parameters[meta.Name] = v
				continue
			}
			if meta.Default != nil {
				if s.Parameters == nil {
					s.Parameters = make(map[string]interface{})
				}
				s.Parameters[meta.Name] = meta.Default
				continue
			}
			fields = append(fields, FormField{
				Name:        meta.Name,
				Label:       meta.Name,
				Description: meta.Description,
				Type:        meta.Type,
				Required:    true,
				Choices:     meta.Choices,
				StepID:      s.ID,
			})
		}
		if len(fields) > 0 {
			sections = append(sections, FormSection{
				Title:  fmt.Sprintf("%s — %s", s.NodeName, s.ActionName),
				NodeID: s.NodeID,
				Fields: fields,
			})
		}
	}
	if len(sections) == 0 {
		return nil
	}
	title := resp.Title
	if title == "" {
		title = "A few details are needed before this workflow can run"
	}
	return &SmartForm{ID: uuid.NewString(), Title: title, Sections: sections}
}

// degraded substitutes a minimal plan from the first two snapshot entries
// with a low confidence score instead of failing the turn outright.
func (p *Planner) degraded(snap *registry.Snapshot, mem *Memory, cause error) *ProtocolResult {
	var steps []PlanStep
	for i, n := range snap.Nodes() {
		if i >= 2 {
			break
		}
		step := PlanStep{
			ID:          uuid.NewString(),
			Order:       i + 1,
			Kind:        KindAction,
			NodeID:      n.ID,
			NodeName:    n.Name,
			DefaultAuth: n.DefaultAuth,
			Confidence:  degradedConfidence,
			Description: fmt.Sprintf("Fallback step using %s", n.Name),
		}
		if len(n.Actions) > 0 {
			step.ActionID = n.Actions[0].ID
			step.ActionName = n.Actions[0].Name
			step.ParameterMeta = n.Actions[0].Parameters
		}
		steps = append(steps, step)
	}
	res := &ProtocolResult{
		State:      StateError,
		Steps:      steps,
		Confidence: degradedConfidence,
		Summary:    fmt.Sprintf("Planning degraded: %v", cause),
		Memory:     mem,
	}
	p.metrics.RecordTurn(string(StateError))
	return res
}

func buildReview(resp *rawResponse, steps []PlanStep) *ReviewSummary {
	review := &ReviewSummary{
		Title:        resp.Title,
		Trigger:      resp.Trigger,
		Outcome:      resp.Outcome,
		TimeEstimate: resp.TimeEstimate,
	}
	if review.Title == "" {
		review.Title = "Proposed workflow"
	}
	for _, s := range steps {
		switch s.Kind {
		case KindBranch:
			review.StepLines = append(review.StepLines, fmt.Sprintf("%d. If %s", s.Order, s.Condition))
		default:
			line := fmt.Sprintf("%d. %s: %s", s.Order, s.NodeName, s.ActionName)
			if s.Description != "" {
				line = fmt.Sprintf("%s — %s", line, s.Description)
			}
			review.StepLines = append(review.StepLines, line)
		}
	}
	return review
}

// planConfidence blends the response confidence with step-level signals.
// Any unresolved placeholder caps the plan confidence.
func planConfidence(steps []PlanStep, base float64) float64 {
	if base == 0 {
		base = 0.8
	}
	for _, s := range steps {
		if s.Unresolved && base > 0.5 {
			base = 0.5
		}
	}
	return base
}

func isEmptyValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}
