package schema

// Outcome tags the result of one schema step
type Outcome string

// Step outcomes
const (
	OutcomeOK      Outcome = "ok"
	OutcomeWarned  Outcome = "warned"
	OutcomeFatal   Outcome = "fatal"
	OutcomeSkipped Outcome = "skipped"
)

// StepOutcome is the result of one schema step
type StepOutcome struct {
	Step    string  `json:"step"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// Step names
const (
	StepBaseMigrations  = "base_migrations"
	StepEmbeddingColumn = "embedding_column"
	StepDropIndex       = "drop_index"
	StepDropColumn      = "drop_column"
	StepAddColumn       = "add_column"
	StepCreateIndex     = "create_index"
)

// Report collects the step outcomes of a provision or migration run
type Report struct {
	Dimension int           `json:"dimension"`
	Steps     []StepOutcome `json:"steps"`
}

// ProvisionReport is the result of Provision
type ProvisionReport struct {
	Report
	ColumnCreated bool `json:"column_created"`
}

// MigrationReport is the result of MigrateEmbeddingDimension
type MigrationReport struct {
	Report
	PreviousDimension int `json:"previous_dimension"`
}

func (r *Report) record(step string, outcome Outcome, detail string) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, Outcome: outcome, Detail: detail})
}

// Outcome returns the outcome of step, or "" when it never ran
func (r *Report) Outcome(step string) Outcome {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Outcome
		}
	}
	return ""
}

// Fatal returns the step that aborted the run, if any
func (r *Report) Fatal() *StepOutcome {
	for i := range r.Steps {
		if r.Steps[i].Outcome == OutcomeFatal {
			return &r.Steps[i]
		}
	}
	return nil
}

// Warnings returns the steps that failed without aborting the run
func (r *Report) Warnings() []StepOutcome {
	var warned []StepOutcome
	for _, s := range r.Steps {
		if s.Outcome == OutcomeWarned {
			warned = append(warned, s)
		}
	}
	return warned
}

// Succeeded reports whether no step was fatal
func (r *Report) Succeeded() bool {
	return r.Fatal() == nil
}
