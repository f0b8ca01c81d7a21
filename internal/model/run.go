package model

import "time"

// RunMode tells how the scheduler drives sync cycles.
type RunMode string

const (
	// RunModeOneShot runs a single full export and exits.
	RunModeOneShot RunMode = "one_shot"

	// RunModeContinuous repeats the cycle until cancelled.
	RunModeContinuous RunMode = "continuous"
)

// Run is the history row of one sync cycle.
type Run struct {
	ID         string     `db:"id" json:"id"`
	Mode       RunMode    `db:"mode" json:"mode"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Emitted    int        `db:"emitted" json:"emitted"`
	Failed     int        `db:"failed" json:"failed"`
	Skipped    int        `db:"skipped" json:"skipped"`
	StageErrs  int        `db:"stage_errors" json:"stage_errors"`
}
