package planner

// LegPlan is the execution hint for one entry leg. ValidUntilMS is only
// set for maker limits; past it the fallback takes over.
type LegPlan struct {
	Type         EntryType `json:"type"`
	Price        float64   `json:"price"`
	PostOnly     bool      `json:"post_only"`
	ValidUntilMS int64     `json:"valid_until_ms,omitempty"`
	Reason       string    `json:"reason"`
}

// Fallback replaces an unfilled maker limit with a stop entry at the same
// price once the timeout elapses.
type Fallback struct {
	ActivateAfterMS int64     `json:"activate_after_ms"`
	Type            EntryType `json:"type"`
	Price           float64   `json:"price"`
	Reason          string    `json:"reason"`
}

// ExecutionPlan is the live execution recipe for a near/far entry pair.
type ExecutionPlan struct {
	Near     LegPlan   `json:"near_plan"`
	Far      LegPlan   `json:"far_plan"`
	Fallback *Fallback `json:"fallback,omitempty"`
}

// DecideExecution stamps the entry pair with timing semantics: maker
// limits expire after the entry timeout and arm a stop fallback at the
// same price; stop entries need neither.
func DecideExecution(near, far EntryLeg, nowMS int64, cfg Config) ExecutionPlan {
	timeoutSec := cfg.EntryTimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	timeout := int64(timeoutSec) * 1000

	plan := ExecutionPlan{
		Near: LegPlan{Type: near.Type, Price: near.Price, PostOnly: near.PostOnly, Reason: near.Reason},
		Far:  LegPlan{Type: far.Type, Price: far.Price, PostOnly: far.PostOnly, Reason: far.Reason},
	}

	if near.Type == EntryLimit {
		plan.Near.ValidUntilMS = nowMS + timeout
		plan.Fallback = &Fallback{
			ActivateAfterMS: timeout,
			Type:            EntryStop,
			Price:           near.Price,
			Reason:          "maker_timeout",
		}
	}
	if far.Type == EntryLimit {
		plan.Far.ValidUntilMS = nowMS + timeout
	}

	return plan
}
