// Package reliability keeps the databases healthy between conversion runs.
package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mkarlsen/fxbase/internal/database"
)

// MaintenanceJob performs daily database upkeep: integrity checks, WAL
// checkpoints and VACUUM across every registered database, plus a disk
// space check on the data directory. An integrity failure is fatal; the
// space-reclaiming steps only log their errors.
type MaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes one maintenance pass
func (j *MaintenanceJob) Run(ctx context.Context) error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("Integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, the next checkpoint will catch up
			j.log.Warn().
				Str("database", name).
				Err(err).
				Msg("WAL checkpoint failed")
		}
	}

	for name, db := range j.databases {
		j.vacuum(name, db)
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.logResourceUsage()

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed")

	return nil
}

// logResourceUsage records host CPU and memory usage once per run so
// resource trends are visible in the logs without a metrics stack.
func (j *MaintenanceJob) logResourceUsage() {
	// 100ms sample keeps the job fast while still giving a usable reading
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	j.log.Info().
		Float64("cpu_percent", cpuAvg).
		Float64("mem_percent", memStat.UsedPercent).
		Msg("Resource usage")
}

func (j *MaintenanceJob) vacuum(name string, db *database.DB) {
	sizeBefore := db.SizeBytes()

	if err := db.Vacuum(); err != nil {
		j.log.Error().
			Str("database", name).
			Err(err).
			Msg("VACUUM failed")
		return
	}

	sizeAfter := db.SizeBytes()
	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", float64(sizeBefore)/1024/1024).
		Float64("size_after_mb", float64(sizeAfter)/1024/1024).
		Msg("VACUUM completed")
}

// checkDiskSpace halts maintenance when the data directory's filesystem is
// nearly full, since a failed write mid-conversion is worse than a skipped
// run.
func (j *MaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9

	if availableGB < 0.5 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	}

	if availableGB < 5.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}
