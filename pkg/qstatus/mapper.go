// Package qstatus derives the abstract job status from a batch Job and its
// pods. Only the notebook container decides completion; the object storage
// sidecar and init containers never do.
package qstatus

import (
	"fmt"
	"sort"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qspec"
)

// Observation is the abstract state recovered from cluster objects.
type Observation struct {
	Status     qjob.Status
	Message    string
	ExitCode   *int32
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// waiting reasons that are part of a normal start
var startingReasons = map[string]bool{
	"ContainerCreating": true,
	"PodInitializing":   true,
}

// Map computes the observation for a job. pods are the pods owned by the job,
// events may contain events for the job and its pods and only explain why a
// job is still accepted.
func Map(job *batchv1.Job, pods []corev1.Pod, events []corev1.Event) Observation {
	obs := Observation{CreatedAt: job.CreationTimestamp.Time}

	pod := newestPod(pods)
	main := mainContainer(pod)
	deleting := job.DeletionTimestamp

	var started *time.Time
	if main != nil {
		switch {
		case main.State.Running != nil:
			started = timePtr(main.State.Running.StartedAt.Time)
		case main.State.Terminated != nil:
			started = timePtr(main.State.Terminated.StartedAt.Time)
		}
	}
	if started == nil && job.Status.StartTime != nil {
		started = timePtr(job.Status.StartTime.Time)
	}

	switch {
	case main != nil && main.State.Terminated != nil && finishedBefore(main.State.Terminated, deleting):
		term := main.State.Terminated
		code := term.ExitCode
		obs.ExitCode = &code
		obs.StartedAt = started
		obs.FinishedAt = timePtr(term.FinishedAt.Time)
		if code == 0 {
			obs.Status = qjob.StatusSuccessful
		} else {
			obs.Status = qjob.StatusFailed
			obs.Message = terminatedMessage(term)
		}

	case conditionTrue(job, batchv1.JobComplete) != nil:
		cond := conditionTrue(job, batchv1.JobComplete)
		obs.Status = qjob.StatusSuccessful
		obs.StartedAt = started
		obs.FinishedAt = firstTime(job.Status.CompletionTime, &cond.LastTransitionTime)

	case conditionTrue(job, batchv1.JobFailed) != nil:
		cond := conditionTrue(job, batchv1.JobFailed)
		obs.Status = qjob.StatusFailed
		obs.StartedAt = started
		obs.FinishedAt = firstTime(&cond.LastTransitionTime)
		obs.Message = failedMessage(cond, pod)

	case deleting != nil:
		obs.Status = qjob.StatusDismissed
		obs.StartedAt = started
		obs.FinishedAt = timePtr(deleting.Time)
		obs.Message = "job was cancelled"

	case main != nil && main.State.Running != nil:
		obs.Status = qjob.StatusRunning
		obs.StartedAt = started

	default:
		obs.Status = qjob.StatusAccepted
		obs.Message = acceptedMessage(job, pod, events)
	}

	clamp(&obs)
	return obs
}

func mainContainer(pod *corev1.Pod) *corev1.ContainerStatus {
	if pod == nil {
		return nil
	}
	for i := range pod.Status.ContainerStatuses {
		if pod.Status.ContainerStatuses[i].Name == qspec.MainContainerName {
			return &pod.Status.ContainerStatuses[i]
		}
	}
	return nil
}

// NewestPod returns the most recently created pod, or nil.
func NewestPod(pods []corev1.Pod) *corev1.Pod {
	return newestPod(pods)
}

func newestPod(pods []corev1.Pod) *corev1.Pod {
	var newest *corev1.Pod
	for i := range pods {
		p := &pods[i]
		if newest == nil || newest.CreationTimestamp.Before(&p.CreationTimestamp) {
			newest = p
		}
	}
	return newest
}

// finishedBefore tells a notebook that ended on its own apart from one that
// was killed by a cancellation.
func finishedBefore(term *corev1.ContainerStateTerminated, deleting *metav1.Time) bool {
	if deleting == nil {
		return true
	}
	if term.FinishedAt.IsZero() {
		return false
	}
	return term.FinishedAt.Time.Before(deleting.Time)
}

func firstTime(ts ...*metav1.Time) *time.Time {
	for _, t := range ts {
		if t != nil && !t.IsZero() {
			return timePtr(t.Time)
		}
	}
	return nil
}

func conditionTrue(job *batchv1.Job, t batchv1.JobConditionType) *batchv1.JobCondition {
	for i := range job.Status.Conditions {
		c := &job.Status.Conditions[i]
		if c.Type == t && c.Status == corev1.ConditionTrue {
			return c
		}
	}
	return nil
}

func terminatedMessage(term *corev1.ContainerStateTerminated) string {
	if term.ExitCode == qspec.MountTimeoutExitCode {
		return "object storage mount did not become ready in time"
	}
	msg := fmt.Sprintf("notebook exited with code %d", term.ExitCode)
	if term.Reason != "" {
		msg += " (" + term.Reason + ")"
	}
	if m := strings.TrimSpace(term.Message); m != "" {
		msg += ": " + m
	}
	return msg
}

func failedMessage(cond *batchv1.JobCondition, pod *corev1.Pod) string {
	if pod != nil {
		for _, s := range pod.Status.InitContainerStatuses {
			if t := s.State.Terminated; t != nil && t.ExitCode != 0 {
				return fmt.Sprintf("init container %s exited with code %d (%s)", s.Name, t.ExitCode, t.Reason)
			}
		}
	}
	return joinReason(cond.Reason, cond.Message)
}

func acceptedMessage(job *batchv1.Job, pod *corev1.Pod, events []corev1.Event) string {
	if pod != nil {
		for _, c := range pod.Status.Conditions {
			if c.Type == corev1.PodScheduled && c.Status == corev1.ConditionFalse {
				return joinReason(c.Reason, c.Message)
			}
		}
		statuses := append(append([]corev1.ContainerStatus{}, pod.Status.InitContainerStatuses...), pod.Status.ContainerStatuses...)
		for _, s := range statuses {
			if w := s.State.Waiting; w != nil && !startingReasons[w.Reason] {
				return s.Name + ": " + joinReason(w.Reason, w.Message)
			}
		}
	}

	names := map[string]bool{job.Name: true}
	if pod != nil {
		names[pod.Name] = true
	}
	if e := latestEvent(events, names); e != nil {
		return joinReason(e.Reason, e.Message)
	}
	return ""
}

func latestEvent(events []corev1.Event, names map[string]bool) *corev1.Event {
	var matching []corev1.Event
	for _, e := range events {
		if names[e.InvolvedObject.Name] {
			matching = append(matching, e)
		}
	}
	if len(matching) == 0 {
		return nil
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return eventTime(matching[i]).Before(eventTime(matching[j]))
	})
	return &matching[len(matching)-1]
}

func eventTime(e corev1.Event) time.Time {
	switch {
	case !e.LastTimestamp.IsZero():
		return e.LastTimestamp.Time
	case !e.EventTime.IsZero():
		return e.EventTime.Time
	default:
		return e.FirstTimestamp.Time
	}
}

func joinReason(reason, message string) string {
	switch {
	case reason == "":
		return message
	case message == "":
		return reason
	default:
		return reason + ": " + message
	}
}

// clamp keeps created <= started <= finished.
func clamp(obs *Observation) {
	if obs.StartedAt != nil && obs.StartedAt.Before(obs.CreatedAt) {
		obs.StartedAt = timePtr(obs.CreatedAt)
	}
	if obs.FinishedAt == nil {
		return
	}
	floor := obs.CreatedAt
	if obs.StartedAt != nil {
		floor = *obs.StartedAt
	}
	if obs.FinishedAt.Before(floor) {
		obs.FinishedAt = timePtr(floor)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
