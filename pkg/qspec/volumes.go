package qspec

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// HomeVolume mounts the user's home claim at the notebook home directory.
type HomeVolume struct{}

func (HomeVolume) Name() string { return "home-volume" }

func (HomeVolume) Assemble(ctx Context) (Fragment, error) {
	claim := ctx.Processor.HomeVolumeClaimName
	if claim == "" {
		return Fragment{}, nil
	}
	return Fragment{
		Volumes: []corev1.Volume{{
			Name: HomeVolumeName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claim},
			},
		}},
		VolumeMounts: []corev1.VolumeMount{{Name: HomeVolumeName, MountPath: HomeDir}},
	}, nil
}

// ExtraVolumes mounts additional persistent volume claims.
type ExtraVolumes struct{}

func (ExtraVolumes) Name() string { return "extra-volumes" }

func (ExtraVolumes) Assemble(ctx Context) (Fragment, error) {
	var f Fragment
	for i, pvc := range ctx.Processor.ExtraPVCs {
		name := fmt.Sprintf("extra-%d", i)
		f.Volumes = append(f.Volumes, corev1.Volume{
			Name: name,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: pvc.ClaimName,
					ReadOnly:  pvc.ReadOnly,
				},
			},
		})
		f.VolumeMounts = append(f.VolumeMounts, corev1.VolumeMount{
			Name:      name,
			MountPath: pvc.MountPath,
			SubPath:   pvc.SubPath,
			ReadOnly:  pvc.ReadOnly,
		})
	}
	return f, nil
}
