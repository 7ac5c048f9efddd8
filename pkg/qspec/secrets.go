package qspec

import (
	"fmt"
	"path"

	corev1 "k8s.io/api/core/v1"

	"github.com/quatton/qpaper/pkg/qconfig"
)

// Secrets exposes named secrets to the notebook, either as files under
// /secret/<name> or as environment variables.
type Secrets struct{}

func (Secrets) Name() string { return "secrets" }

func (Secrets) Assemble(ctx Context) (Fragment, error) {
	var f Fragment
	for i, s := range ctx.Processor.Secrets {
		switch s.Access {
		case qconfig.SecretAccessEnv:
			f.EnvFrom = append(f.EnvFrom, corev1.EnvFromSource{
				SecretRef: &corev1.SecretEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: s.Name},
				},
			})
		case qconfig.SecretAccessMount, "":
			volume := fmt.Sprintf("secret-%d", i)
			f.Volumes = append(f.Volumes, corev1.Volume{
				Name:         volume,
				VolumeSource: corev1.VolumeSource{Secret: &corev1.SecretVolumeSource{SecretName: s.Name}},
			})
			f.VolumeMounts = append(f.VolumeMounts, corev1.VolumeMount{
				Name:      volume,
				MountPath: path.Join(SecretMountRoot, s.Name),
				ReadOnly:  true,
			})
		default:
			return Fragment{}, fmt.Errorf("secret %s: unknown access %q", s.Name, s.Access)
		}
	}
	return f, nil
}
