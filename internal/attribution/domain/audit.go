package domain

// AuditStage tags which engine stage produced a decision step.
type AuditStage string

const (
	AuditStageInference   AuditStage = "inference"
	AuditStageEvaluation  AuditStage = "evaluation"
	AuditStageCalculation AuditStage = "calculation"
	AuditStageConstraint  AuditStage = "constraint"
	AuditStageLedger      AuditStage = "ledger"
)

// AuditStep is one ordered decision record in an entry's audit trail. The
// Data payload carries enough structure to reconstruct the computation
// without re-running it; it is rendered to text only at the export boundary.
type AuditStep struct {
	Seq      int            `json:"seq"`
	Stage    AuditStage     `json:"stage"`
	Decision string         `json:"decision"`
	Detail   string         `json:"detail,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Trail accumulates audit steps in order.
type Trail struct {
	steps []AuditStep
}

// Add appends a step, assigning the next sequence number.
func (t *Trail) Add(stage AuditStage, decision, detail string, data map[string]any) {
	t.steps = append(t.steps, AuditStep{
		Seq:      len(t.steps) + 1,
		Stage:    stage,
		Decision: decision,
		Detail:   detail,
		Data:     data,
	})
}

// Steps returns the ordered steps recorded so far.
func (t *Trail) Steps() []AuditStep {
	out := make([]AuditStep, len(t.steps))
	copy(out, t.steps)
	return out
}
