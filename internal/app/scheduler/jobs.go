package scheduler

import "strings"

// JobKind identifies one of the idempotent batch jobs driven by cron ticks.
type JobKind int

const (
	CreateBatch JobKind = iota + 1
	CheckBatch
)

const (
	DefaultCreateBatchSchedule = "*/5 * * * *"
	DefaultCheckBatchSchedule  = "*/10 * * * *"
)

// Label is the name used in logs and metrics.
func (k JobKind) Label() string {
	switch k {
	case CreateBatch:
		return "create_batch"
	case CheckBatch:
		return "check_batch"
	default:
		return "unknown"
	}
}

// Path is the internal route that performs the job.
func (k JobKind) Path() string {
	switch k {
	case CreateBatch:
		return "/internal/batch/create"
	case CheckBatch:
		return "/internal/batch/check"
	default:
		return ""
	}
}

func (k JobKind) String() string { return k.Label() }

// Schedules maps each job to the cron expression that selects it.
type Schedules struct {
	CreateBatch string
	CheckBatch  string
}

// DefaultSchedules returns the stock five and ten minute cadences.
func DefaultSchedules() Schedules {
	return Schedules{
		CreateBatch: DefaultCreateBatchSchedule,
		CheckBatch:  DefaultCheckBatchSchedule,
	}
}

func (s Schedules) withDefaults() Schedules {
	if strings.TrimSpace(s.CreateBatch) == "" {
		s.CreateBatch = DefaultCreateBatchSchedule
	}
	if strings.TrimSpace(s.CheckBatch) == "" {
		s.CheckBatch = DefaultCheckBatchSchedule
	}
	return s
}

// SelectJobs returns the jobs a tick identified by cronID should run. An empty
// cronID runs every job; an unrecognised one runs nothing.
func SelectJobs(cronID string, schedules Schedules) []JobKind {
	schedules = schedules.withDefaults()
	cronID = strings.TrimSpace(cronID)
	if cronID == "" {
		return []JobKind{CreateBatch, CheckBatch}
	}

	var jobs []JobKind
	if cronID == strings.TrimSpace(schedules.CreateBatch) {
		jobs = append(jobs, CreateBatch)
	}
	if cronID == strings.TrimSpace(schedules.CheckBatch) {
		jobs = append(jobs, CheckBatch)
	}
	return jobs
}
