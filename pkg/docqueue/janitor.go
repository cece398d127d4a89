package docqueue

import (
	"github.com/kellnr/kellnr/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Janitor drains a Queue on a cron schedule, handing each queued Entry to
// a Consumer. An entry is deleted from the queue only after its build
// succeeds; a failed build leaves it queued, so the next scheduled drain
// tries it again.
type Janitor struct {
	queue    Queue
	consumer Consumer
	logger   *observability.Logger
	cron     *cron.Cron
}

// NewJanitor constructs a Janitor that has not yet been started.
func NewJanitor(queue Queue, consumer Consumer, logger *observability.Logger) *Janitor {
	return &Janitor{
		queue:    queue,
		consumer: consumer,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules a drain of the queue on schedule (standard five-field
// cron syntax) and begins running it in the background.
func (j *Janitor) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, j.drainOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for any in-flight drain to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) drainOnce() {
	entries, err := j.queue.GetDocQueue()
	if err != nil {
		j.logger.WithError(err).Error("doc queue drain failed to list entries")
		return
	}
	for _, e := range entries {
		if err := j.consumer.BuildDocs(e); err != nil {
			j.logger.WithError(err).WithCrate(e.NormalizedName).WithVersion(e.Version).Error("doc build failed")
			continue
		}
		if err := j.queue.DeleteDocQueue(e.ID); err != nil {
			j.logger.WithError(err).WithCrate(e.NormalizedName).Error("failed to remove completed doc queue entry")
		}
	}
}
