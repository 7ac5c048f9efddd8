package qspec

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/quatton/qpaper/pkg/qconfig"
)

// Fragment is the part of a pod spec contributed by one attachment.
// Fragments compose by concatenation.
type Fragment struct {
	InitContainers []corev1.Container
	Containers     []corev1.Container
	Volumes        []corev1.Volume
	// VolumeMounts, Env and EnvFrom apply to the notebook container.
	VolumeMounts []corev1.VolumeMount
	Env          []corev1.EnvVar
	EnvFrom      []corev1.EnvFromSource
	// PreCommands run in the notebook container before papermill.
	PreCommands []string
	// ShareProcessNamespace is needed by sidecars that watch the notebook.
	ShareProcessNamespace bool
}

// Add returns the concatenation of f and other.
func (f Fragment) Add(other Fragment) Fragment {
	return Fragment{
		InitContainers:        append(append([]corev1.Container{}, f.InitContainers...), other.InitContainers...),
		Containers:            append(append([]corev1.Container{}, f.Containers...), other.Containers...),
		Volumes:               append(append([]corev1.Volume{}, f.Volumes...), other.Volumes...),
		VolumeMounts:          append(append([]corev1.VolumeMount{}, f.VolumeMounts...), other.VolumeMounts...),
		Env:                   append(append([]corev1.EnvVar{}, f.Env...), other.Env...),
		EnvFrom:               append(append([]corev1.EnvFromSource{}, f.EnvFrom...), other.EnvFrom...),
		PreCommands:           append(append([]string{}, f.PreCommands...), other.PreCommands...),
		ShareProcessNamespace: f.ShareProcessNamespace || other.ShareProcessNamespace,
	}
}

// Context is what an assembler may look at.
type Context struct {
	JobID     string
	Processor *qconfig.Processor
	Request   *Request
}

// Assembler contributes a fragment for one kind of external resource.
// An assembler with nothing configured returns an empty fragment.
type Assembler interface {
	Name() string
	Assemble(ctx Context) (Fragment, error)
}

// DefaultAssemblers is the fixed attachment order.
func DefaultAssemblers() []Assembler {
	return []Assembler{
		HomeVolume{},
		ExtraVolumes{},
		ObjectStorage{},
		Secrets{},
		GitCheckout{},
	}
}

func secretEnv(name, secret, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secret},
				Key:                  key,
			},
		},
	}
}

func emptyDir(name string) corev1.Volume {
	return corev1.Volume{
		Name:         name,
		VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
	}
}
