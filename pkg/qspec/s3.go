package qspec

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/ptr"

	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qerr"
)

const sidecarBucketPath = "/opt/s3fs/bucket"

// ObjectStorage mounts a bucket through an s3fs sidecar. The sidecar writes a
// marker into a shared volume once the mount is live and the notebook
// container waits for it before doing anything else.
type ObjectStorage struct{}

func (ObjectStorage) Name() string { return "object-storage" }

func (ObjectStorage) Assemble(ctx Context) (Fragment, error) {
	s3 := ctx.Processor.S3
	if s3 == nil {
		if ctx.Request != nil && ctx.Request.ResultDataDirectory != "" {
			return Fragment{}, qerr.Validation("result_data_directory needs an object storage mount")
		}
		return Fragment{}, nil
	}
	if s3.BucketName == "" || s3.SecretName == "" {
		return Fragment{}, qerr.Validation("object storage mount needs a bucket and a credentials secret")
	}

	mountPath := s3.MountPath
	if mountPath == "" {
		mountPath = S3MountPath
	}

	sidecar := corev1.Container{
		Name:  SidecarContainerName,
		Image: S3FSImage,
		Env: []corev1.EnvVar{
			{Name: "S3FS_ARGS", Value: "-oallow_other"},
			{Name: "UID", Value: strconv.FormatInt(NotebookUID, 10)},
			{Name: "GID", Value: strconv.FormatInt(NotebookGID, 10)},
			secretEnv("AWS_S3_ACCESS_KEY_ID", s3.SecretName, "username"),
			secretEnv("AWS_S3_SECRET_ACCESS_KEY", s3.SecretName, "password"),
			{Name: "AWS_S3_BUCKET", Value: s3.BucketName},
			{Name: "AWS_S3_URL", Value: s3.S3URL},
			{Name: "TINI_SUBREAPER", Value: "1"},
		},
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:             S3VolumeName,
				MountPath:        sidecarBucketPath,
				MountPropagation: ptr.To(corev1.MountPropagationBidirectional),
			},
			{Name: HandshakeVolumeName, MountPath: HandshakeDir},
		},
		SecurityContext: &corev1.SecurityContext{Privileged: ptr.To(true)},
		Resources: corev1.ResourceRequirements{
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("100m"),
				corev1.ResourceMemory: resource.MustParse("128Mi"),
			},
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("50m"),
				corev1.ResourceMemory: resource.MustParse("32Mi"),
			},
		},
	}

	f := Fragment{
		Volumes: []corev1.Volume{emptyDir(S3VolumeName), emptyDir(HandshakeVolumeName)},
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:             S3VolumeName,
				MountPath:        mountPath,
				MountPropagation: ptr.To(corev1.MountPropagationHostToContainer),
			},
			{Name: HandshakeVolumeName, MountPath: HandshakeDir, ReadOnly: true},
		},
		Env:         []corev1.EnvVar{{Name: EnvMountMarker, Value: MountReadyMarker}},
		PreCommands: []string{MountWaitCommand(ctx.Processor.MountWait)},
	}

	switch ctx.Processor.SidecarMode {
	case qconfig.SidecarLegacy:
		sidecar.Args = []string{"sh", "-c", legacySidecarScript()}
		f.Containers = []corev1.Container{sidecar}
		f.ShareProcessNamespace = true
	default:
		sidecar.Args = []string{"sh", "-c", nativeSidecarScript()}
		sidecar.RestartPolicy = ptr.To(corev1.ContainerRestartPolicyAlways)
		f.InitContainers = []corev1.Container{sidecar}
	}

	if ctx.Request != nil && ctx.Request.ResultDataDirectory != "" {
		cmd, err := resultDataCommand(mountPath, ctx.Request.ResultDataDirectory, ctx.JobID)
		if err != nil {
			return Fragment{}, err
		}
		f.PreCommands = append(f.PreCommands, cmd)
	}
	return f, nil
}

func markMountReady() string {
	return fmt.Sprintf("until mountpoint -q %s; do sleep 0.2; done; touch %s; echo \"$(date) mount ready\"",
		sidecarBucketPath, MountReadyMarker)
}

func nativeSidecarScript() string {
	return markMountReady() + "; trap 'exit 0' TERM INT; while true; do sleep 1; done"
}

// legacySidecarScript keeps the sidecar alive while a bash process exists.
// The s3fs image has no bash, so the only bash is the notebook shell.
func legacySidecarScript() string {
	return markMountReady() +
		"; sleep 3; while pgrep -x bash >/dev/null; do sleep 1; done; echo \"$(date) job end detected\""
}

// MountWaitCommand polls for the mount marker with exponential backoff and
// exits with MountTimeoutExitCode once the timeout has passed.
func MountWaitCommand(w qconfig.MountWait) string {
	initial := w.InitialDelay.Milliseconds()
	if initial < 1 {
		initial = 1
	}
	maxDelay := w.MaxDelay.Milliseconds()
	if maxDelay < initial {
		maxDelay = initial
	}
	timeout := int64(math.Ceil(w.Timeout.Seconds()))
	if timeout < 1 {
		timeout = 1
	}

	parts := []string{
		fmt.Sprintf("QPAPER_DELAY_MS=%d", initial),
		fmt.Sprintf("QPAPER_DEADLINE=$(( $(date +%%s) + %d ))", timeout),
		fmt.Sprintf("until [ -f %s ]; do "+
			"if [ \"$(date +%%s)\" -ge \"$QPAPER_DEADLINE\" ]; then echo \"object storage mount not ready after %s\" >&2; exit %d; fi; "+
			"sleep \"$((QPAPER_DELAY_MS / 1000)).$(printf '%%03d' $((QPAPER_DELAY_MS %% 1000)))\"; "+
			"QPAPER_DELAY_MS=$((QPAPER_DELAY_MS * 2)); "+
			"if [ \"$QPAPER_DELAY_MS\" -gt %d ]; then QPAPER_DELAY_MS=%d; fi; "+
			"done",
			MountReadyMarker, time.Duration(timeout)*time.Second, MountTimeoutExitCode, maxDelay, maxDelay),
	}
	return strings.Join(parts, "; ")
}

// resultDataCommand links a per job directory on the bucket to the result
// data path. Only the last path element of the requested directory is used.
func resultDataCommand(mountPath, dir, jobID string) (string, error) {
	expanded := strings.ReplaceAll(dir, "{job_name}", jobID)
	name := path.Base(path.Clean("/" + expanded))
	if name == "/" || name == "." || name == ".." {
		return "", qerr.Validation("invalid result_data_directory %q", dir)
	}
	target := path.Join(mountPath, name)
	return fmt.Sprintf("mkdir -p %s && ln -sfn %s %s",
		shellescape.Quote(target), shellescape.Quote(target), shellescape.Quote(ResultDataPath)), nil
}
