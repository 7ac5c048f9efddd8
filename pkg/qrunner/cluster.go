package qrunner

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	utilnet "k8s.io/apimachinery/pkg/util/net"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/ptr"

	"github.com/quatton/qpaper/pkg/qerr"
)

// Defaults for cluster calls.
var (
	DefaultCallTimeout = 10 * time.Second
	DefaultBackoff     = wait.Backoff{Steps: 3, Duration: 200 * time.Millisecond, Factor: 2, Jitter: 0.1}
)

// MaxLogBytes bounds the logs returned for a single pod.
const MaxLogBytes = 1 << 20

// ClusterOptions tunes retries of cluster calls.
type ClusterOptions struct {
	Backoff     wait.Backoff
	CallTimeout time.Duration
}

// Cluster handles Kubernetes Job operations. Every call runs under its own
// timeout, transient failures are retried and errors come back as qerr kinds.
type Cluster struct {
	client    kubernetes.Interface
	namespace string
	opts      ClusterOptions
	metrics   Recorder
}

// NewCluster creates a Cluster for one namespace.
func NewCluster(client kubernetes.Interface, namespace string, opts ClusterOptions, metrics Recorder) *Cluster {
	if opts.Backoff.Steps == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Cluster{client: client, namespace: namespace, opts: opts, metrics: metrics}
}

// Namespace returns the namespace jobs live in.
func (c *Cluster) Namespace() string {
	return c.namespace
}

func (c *Cluster) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := retry.OnError(c.opts.Backoff, func(err error) bool {
		return ctx.Err() == nil && isTransient(err)
	}, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		err = classify(op, err)
	}
	c.metrics.RecordClusterCall(ctx, op, time.Since(start), err)
	return err
}

// CreateJob creates a new Kubernetes Job
func (c *Cluster) CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	var created *batchv1.Job
	err := c.do(ctx, "creating job", func(ctx context.Context) (err error) {
		created, err = c.client.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{})
		return err
	})
	return created, err
}

// GetJob retrieves a Job by name
func (c *Cluster) GetJob(ctx context.Context, name string) (*batchv1.Job, error) {
	var job *batchv1.Job
	err := c.do(ctx, "getting job", func(ctx context.Context) (err error) {
		job, err = c.client.BatchV1().Jobs(c.namespace).Get(ctx, name, metav1.GetOptions{})
		return err
	})
	return job, err
}

// DeleteJob deletes a Job and waits for its pods to go first. Pods are
// killed without a grace period.
func (c *Cluster) DeleteJob(ctx context.Context, name string) error {
	return c.do(ctx, "deleting job", func(ctx context.Context) error {
		return c.client.BatchV1().Jobs(c.namespace).Delete(ctx, name, metav1.DeleteOptions{
			PropagationPolicy:  ptr.To(metav1.DeletePropagationForeground),
			GracePeriodSeconds: ptr.To(int64(0)),
		})
	})
}

// ListJobs lists the Jobs matching a label selector
func (c *Cluster) ListJobs(ctx context.Context, labelSelector string) ([]batchv1.Job, error) {
	var list *batchv1.JobList
	err := c.do(ctx, "listing jobs", func(ctx context.Context) (err error) {
		list, err = c.client.BatchV1().Jobs(c.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
		return err
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// ListPods lists the pods matching a label selector
func (c *Cluster) ListPods(ctx context.Context, labelSelector string) ([]corev1.Pod, error) {
	var list *corev1.PodList
	err := c.do(ctx, "listing pods", func(ctx context.Context) (err error) {
		list, err = c.client.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
		return err
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// GetJobPods returns all pods for a given job
func (c *Cluster) GetJobPods(ctx context.Context, jobName string) ([]corev1.Pod, error) {
	return c.ListPods(ctx, "job-name="+jobName)
}

// ListEvents returns the events about the named objects.
func (c *Cluster) ListEvents(ctx context.Context, names ...string) ([]corev1.Event, error) {
	var events []corev1.Event
	for _, name := range names {
		var list *corev1.EventList
		err := c.do(ctx, "listing events", func(ctx context.Context) (err error) {
			list, err = c.client.CoreV1().Events(c.namespace).List(ctx, metav1.ListOptions{
				FieldSelector: fields.OneTermEqualSelector("involvedObject.name", name).String(),
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		events = append(events, list.Items...)
	}
	return events, nil
}

// GetPodLogs retrieves logs from a container of a pod
func (c *Cluster) GetPodLogs(ctx context.Context, podName, container string, tailLines int64) (string, error) {
	opts := &corev1.PodLogOptions{Container: container}
	if tailLines > 0 {
		opts.TailLines = ptr.To(tailLines)
	}

	var logs []byte
	err := c.do(ctx, "getting pod logs", func(ctx context.Context) error {
		stream, err := c.client.CoreV1().Pods(c.namespace).GetLogs(podName, opts).Stream(ctx)
		if err != nil {
			return err
		}
		defer stream.Close()
		logs, err = io.ReadAll(io.LimitReader(stream, MaxLogBytes))
		return err
	})
	return string(logs), err
}

// isTransient reports whether a failed call is worth repeating.
func isTransient(err error) bool {
	switch {
	case apierrors.IsServerTimeout(err),
		apierrors.IsTimeout(err),
		apierrors.IsTooManyRequests(err),
		apierrors.IsInternalError(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsUnexpectedServerError(err):
		return true
	case errors.Is(err, context.DeadlineExceeded),
		utilnet.IsConnectionReset(err),
		utilnet.IsConnectionRefused(err),
		utilnet.IsProbableEOF(err):
		return true
	}

	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return status.Status().Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classify(op string, err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return qerr.Wrap(qerr.KindNotFound, err, "%s", op)
	case apierrors.IsAlreadyExists(err), apierrors.IsConflict(err):
		return qerr.Wrap(qerr.KindConflict, err, "%s", op)
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return qerr.Wrap(qerr.KindValidation, err, "%s", op)
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return qerr.Rejected(err, "%s", op)
	case errors.Is(err, context.Canceled):
		return err
	case isTransient(err):
		return qerr.Transient(err, "%s", op)
	}
	return qerr.Wrap(qerr.KindInternal, err, "%s", op)
}
