// Package qspec turns an execution request into a batch Job manifest.
// Nothing in this package talks to the cluster.
package qspec

import (
	"encoding/json"
	"regexp"
	"time"
	"unicode/utf8"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/utils/ptr"

	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qerr"
	"github.com/quatton/qpaper/pkg/qjob"
)

// BuildInput is everything a manifest depends on.
type BuildInput struct {
	Processor  *qconfig.Processor
	JobID      string
	Parameters qjob.Parameters
	// Now decides the date partition of the default output path.
	Now time.Time
	// RequestUID identifies the submission that created the workload.
	RequestUID string
}

// Builder assembles manifests from a fixed list of assemblers.
type Builder struct {
	assemblers []Assembler
}

// NewBuilder uses DefaultAssemblers when none are given.
func NewBuilder(assemblers ...Assembler) *Builder {
	if len(assemblers) == 0 {
		assemblers = DefaultAssemblers()
	}
	return &Builder{assemblers: assemblers}
}

// Build validates the input and returns the Job to create.
func (b *Builder) Build(in BuildInput) (*batchv1.Job, error) {
	p := in.Processor
	if p == nil {
		return nil, qerr.Validation("no processor given")
	}
	if err := qjob.ValidateID(in.JobID); err != nil {
		return nil, err
	}

	req, err := ParseRequest(in.Parameters)
	if err != nil {
		return nil, err
	}

	image, err := resolveImage(p, req.Image)
	if err != nil {
		return nil, err
	}
	kernel := req.Kernel
	if kernel == "" {
		kernel = p.KernelFor(image)
	}

	notebook, err := NotebookPath(req.Notebook)
	if err != nil {
		return nil, err
	}
	output := OutputPath(p.OutputDirectory, in.JobID, notebook, req.OutputFilename, in.Now)

	placement, err := ResolvePlacement(p, req)
	if err != nil {
		return nil, err
	}

	ctx := Context{JobID: in.JobID, Processor: p, Request: req}
	var frag Fragment
	for _, a := range b.assemblers {
		f, err := a.Assemble(ctx)
		if err != nil {
			if qerr.KindOf(err) == qerr.KindInternal {
				return nil, qerr.Wrap(qerr.KindValidation, err, "%s", a.Name())
			}
			return nil, err
		}
		frag = frag.Add(f)
	}

	env, err := notebookEnv(in.JobID, image, req)
	if err != nil {
		return nil, err
	}

	script := NotebookScript(frag.PreCommands, output,
		PapermillCommand(notebook, output, kernel, req.EncodedParameters != "", p.LogOutput))

	main := corev1.Container{
		Name:         MainContainerName,
		Image:        image,
		Command:      []string{"bash", "-i", "-c", script},
		WorkingDir:   HomeDir,
		Env:          append(env, frag.Env...),
		EnvFrom:      frag.EnvFrom,
		VolumeMounts: frag.VolumeMounts,
		Resources:    resources(req),
		SecurityContext: &corev1.SecurityContext{
			RunAsUser:  ptr.To(NotebookUID),
			RunAsGroup: ptr.To(NotebookGID),
		},
	}

	podSpec := corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		InitContainers:     frag.InitContainers,
		Containers:         append([]corev1.Container{main}, frag.Containers...),
		Volumes:            frag.Volumes,
		ServiceAccountName: p.ServiceAccount,
		Affinity:           placement.Affinity,
		Tolerations:        placement.Tolerations,
		SecurityContext: &corev1.PodSecurityContext{
			SupplementalGroups: []int64{JobRunnerGroupID},
		},
	}
	if frag.ShareProcessNamespace {
		podSpec.ShareProcessNamespace = ptr.To(true)
	}
	if p.ImagePullSecret != "" {
		podSpec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: p.ImagePullSecret}}
	}

	labels := map[string]string{LabelManaged: "true"}
	if len(validation.IsValidLabelValue(p.ID)) == 0 {
		labels[LabelProcessID] = p.ID
	}
	podLabels := map[string]string{}
	for k, v := range labels {
		podLabels[k] = v
	}
	for k, v := range placement.Labels {
		podLabels[k] = v
	}

	annotations := map[string]string{
		AnnotationID:      in.JobID,
		AnnotationProcess: p.ID,
		AnnotationCreated: in.Now.UTC().Format(time.RFC3339),
		AnnotationResult:  output,
	}
	if in.RequestUID != "" {
		annotations[AnnotationRequest] = in.RequestUID
	}
	if link := ResultLink(p.JupyterBaseURL, output); link != "" {
		annotations[AnnotationLink] = link
	}
	if redacted, err := json.Marshal(in.Parameters.Redact()); err == nil {
		annotations[AnnotationParams] = truncate(string(redacted), MaxAnnotationParams)
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:        in.JobID,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr.To(int32(0)),
			TTLSecondsAfterFinished: ptr.To(int32(p.JobTTL / time.Second)),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec:       podSpec,
			},
		},
	}, nil
}

func resolveImage(p *qconfig.Processor, requested string) (string, error) {
	if requested == "" {
		return p.DefaultImage, nil
	}
	if p.AllowedImagesRegex == "" {
		return "", qerr.Validation("custom images are not allowed for process %s", p.ID)
	}
	re, err := regexp.Compile(`^(?:` + p.AllowedImagesRegex + `)$`)
	if err != nil {
		return "", qerr.Validation("allowed images pattern does not compile: %v", err)
	}
	if !re.MatchString(requested) {
		return "", qerr.Validation("image %q is not allowed", requested)
	}
	return requested, nil
}

func notebookEnv(jobID, image string, req *Request) ([]corev1.EnvVar, error) {
	env := []corev1.EnvVar{
		{Name: EnvJupyterImage, Value: image},
		{Name: EnvJobName, Value: jobID},
		{Name: EnvProgressAnnotation, Value: AnnotationProgress},
	}
	if req.EncodedParameters != "" {
		env = append(env, corev1.EnvVar{Name: EnvPapermillParams, Value: req.EncodedParameters})
	}
	for _, param := range req.EnvParameters {
		if qjob.IsScalar(param.Value) {
			value, err := req.EnvParameters.String(param.Name)
			if err != nil {
				return nil, err
			}
			env = append(env, corev1.EnvVar{Name: param.Name, Value: value})
			continue
		}
		encoded, err := json.Marshal(param.Value)
		if err != nil {
			return nil, qerr.Validation("parameters_env %s: %v", param.Name, err)
		}
		env = append(env, corev1.EnvVar{Name: param.Name, Value: string(encoded)})
	}
	return env, nil
}

func resources(req *Request) corev1.ResourceRequirements {
	var r corev1.ResourceRequirements
	set := func(list *corev1.ResourceList, name corev1.ResourceName, q *resource.Quantity) {
		if q == nil {
			return
		}
		if *list == nil {
			*list = corev1.ResourceList{}
		}
		(*list)[name] = *q
	}
	set(&r.Limits, corev1.ResourceCPU, req.CPULimit)
	set(&r.Limits, corev1.ResourceMemory, req.MemLimit)
	set(&r.Requests, corev1.ResourceCPU, req.CPURequests)
	set(&r.Requests, corev1.ResourceMemory, req.MemRequests)
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
