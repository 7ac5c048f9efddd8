package qspec

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	"github.com/quatton/qpaper/pkg/qerr"
)

// GitCheckout clones a repository before the notebook starts. The clone
// runs as the notebook user so the checkout is writable from the notebook.
type GitCheckout struct{}

func (GitCheckout) Name() string { return "git-checkout" }

func (GitCheckout) Assemble(ctx Context) (Fragment, error) {
	repo := ctx.Processor.CheckoutGitRepo
	if repo == nil {
		return Fragment{}, nil
	}
	if repo.URL == "" || repo.SecretName == "" {
		return Fragment{}, qerr.Validation("git checkout needs a repository url and a credentials secret")
	}

	revision := repo.Revision
	if ctx.Request != nil && ctx.Request.GitRevision != "" {
		revision = ctx.Request.GitRevision
	}

	env := []corev1.EnvVar{
		{Name: "GIT_SYNC_REPO", Value: repo.URL},
		{Name: "GIT_SYNC_DEST", Value: GitCheckoutName},
		{Name: "GIT_SYNC_ONE_TIME", Value: "true"},
		secretEnv("GIT_SYNC_USERNAME", repo.SecretName, "username"),
		secretEnv("GIT_SYNC_PASSWORD", repo.SecretName, "password"),
	}
	if revision != "" {
		env = append(env, corev1.EnvVar{Name: "GIT_SYNC_REV", Value: revision})
	}

	return Fragment{
		InitContainers: []corev1.Container{{
			Name:  GitInitContainerName,
			Image: GitSyncImage,
			Env:   env,
			VolumeMounts: []corev1.VolumeMount{{
				Name:      GitVolumeName,
				MountPath: "/tmp/git",
			}},
			SecurityContext: &corev1.SecurityContext{
				RunAsUser:  ptr.To(NotebookUID),
				RunAsGroup: ptr.To(NotebookGID),
			},
		}},
		Volumes:      []corev1.Volume{emptyDir(GitVolumeName)},
		VolumeMounts: []corev1.VolumeMount{{Name: GitVolumeName, MountPath: GitCheckoutDir}},
	}, nil
}
