package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/service"
	"github.com/martijn/vmorch/internal/events"
)

const sseHeartbeat = 15 * time.Second

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe(topics ...string) *events.Subscription
}

type EventHandler struct {
	events Subscriber
	jobs   *service.JobService
}

func NewEventHandler(events Subscriber, jobs *service.JobService) *EventHandler {
	return &EventHandler{events: events, jobs: jobs}
}

// StreamJob handles GET /jobs/:id/events. It streams the events of one job
// as server-sent events and ends once the job reaches a final state.
func (h *EventHandler) StreamJob(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before reading the job so no transition is missed.
	sub := h.events.Subscribe(id)
	defer sub.Close()

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		respondLookupError(c, id, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if job.Status.IsTerminal() {
		c.SSEvent("job-status", gin.H{
			"jobId":      job.ID,
			"status":     job.Status,
			"exitCode":   job.ExitCode,
			"finishedAt": job.FinishedAt,
		})
		return
	}

	h.stream(c, sub, true)
}

// StreamAll handles GET /events, streaming every job's events until the
// client disconnects.
func (h *EventHandler) StreamAll(c *gin.Context) {
	sub := h.events.Subscribe(events.AllJobs)
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.stream(c, sub, false)
}

func (h *EventHandler) stream(c *gin.Context, sub *events.Subscription, untilFinal bool) {
	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case e, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return !(untilFinal && isFinal(e))
		}
	})
}

// isFinal reports whether e is the last event a job publishes. Spawned
// terminal jobs publish nothing after job-started.
func isFinal(e events.Event) bool {
	switch e.Type {
	case events.JobDone, events.JobError, events.JobCanceled:
		return true
	case events.JobStarted:
		return e.Status == string(domain.JobStatusSpawned)
	}
	return false
}
