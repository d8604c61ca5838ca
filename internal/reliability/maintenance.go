package reliability

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/database"
)

// Job is a scheduled maintenance task.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("Job completed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("Job registered")
	return nil
}

// DailyMaintenanceJob checkpoints WAL files and verifies database integrity.
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a daily maintenance job.
func NewDailyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the daily maintenance job.
func (j *DailyMaintenanceJob) Run() error {
	start := time.Now()

	for name, db := range j.databases {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.HealthCheck(ctx)
		cancel()
		if err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Integrity check failed")
			return err
		}

		// Truncate the WAL to keep the ledger files compact.
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(start)).Msg("Daily maintenance completed")
	return nil
}

// BackupJob creates and uploads one backup archive, then rotates old ones.
type BackupJob struct {
	backups *BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a backup job.
func NewBackupJob(backups *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.backups.CreateAndUpload(ctx); err != nil {
		return err
	}
	return j.backups.RotateOldBackups(ctx)
}
