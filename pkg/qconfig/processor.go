package qconfig

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SecretAccess selects how a secret reaches the notebook container.
type SecretAccess string

const (
	SecretAccessMount SecretAccess = "mount"
	SecretAccessEnv   SecretAccess = "env"
)

// SidecarMode selects how the object storage sidecar is attached.
type SidecarMode string

const (
	// SidecarNative runs the sidecar as an init container with restartPolicy
	// Always, so it never keeps the job alive.
	SidecarNative SidecarMode = "native"
	// SidecarLegacy runs the sidecar as a regular container that watches the
	// notebook process through a shared process namespace and exits after it.
	SidecarLegacy SidecarMode = "legacy"
)

// Processor describes one executable process and how its jobs are built.
type Processor struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`

	DefaultImage       string          `mapstructure:"defaultImage"`
	AllowedImagesRegex string          `mapstructure:"allowedImagesRegex"`
	ImagePullSecret    string          `mapstructure:"imagePullSecret"`
	DefaultKernels     []KernelDefault `mapstructure:"defaultKernels"`

	OutputDirectory     string     `mapstructure:"outputDirectory"`
	HomeVolumeClaimName string     `mapstructure:"homeVolumeClaimName"`
	ExtraPVCs           []ExtraPVC `mapstructure:"extraPvcs"`
	JupyterBaseURL      string     `mapstructure:"jupyterBaseUrl"`
	LogOutput           bool       `mapstructure:"logOutput"`

	S3              *S3Mount    `mapstructure:"s3"`
	Secrets         []Secret    `mapstructure:"secrets"`
	CheckoutGitRepo *GitRepo    `mapstructure:"checkoutGitRepo"`
	MountWait       MountWait   `mapstructure:"mountWait"`
	SidecarMode     SidecarMode `mapstructure:"sidecarMode"`

	AllowedNodePurposesRegex string       `mapstructure:"allowedNodePurposesRegex"`
	DefaultNodePurpose       string       `mapstructure:"defaultNodePurpose"`
	NodePurposeLabelKey      string       `mapstructure:"nodePurposeLabelKey"`
	Tolerations              []Toleration `mapstructure:"tolerations"`
	ServiceAccount           string       `mapstructure:"serviceAccount"`
	AllowFargate             bool         `mapstructure:"allowFargate"`

	JobTTL time.Duration `mapstructure:"jobTtl"`
}

type KernelDefault struct {
	ImagePrefix string `mapstructure:"imagePrefix"`
	Kernel      string `mapstructure:"kernel"`
}

type ExtraPVC struct {
	ClaimName string `mapstructure:"claimName"`
	MountPath string `mapstructure:"mountPath"`
	SubPath   string `mapstructure:"subPath"`
	ReadOnly  bool   `mapstructure:"readOnly"`
}

// S3Mount is a bucket mounted into the notebook container by a sidecar. The
// secret must provide the keys username and password.
type S3Mount struct {
	BucketName string `mapstructure:"bucketName"`
	SecretName string `mapstructure:"secretName"`
	S3URL      string `mapstructure:"s3Url"`
	MountPath  string `mapstructure:"mountPath"`
}

type Secret struct {
	Name   string       `mapstructure:"name"`
	Access SecretAccess `mapstructure:"access"`
}

// GitRepo is checked out before the notebook starts. The secret must
// provide the keys username and password.
type GitRepo struct {
	URL        string `mapstructure:"url"`
	SecretName string `mapstructure:"secretName"`
	Revision   string `mapstructure:"revision"`
}

type Toleration struct {
	Key      string `mapstructure:"key"`
	Operator string `mapstructure:"operator"`
	Value    string `mapstructure:"value"`
	Effect   string `mapstructure:"effect"`
}

// MountWait bounds how long the notebook container waits for the object
// storage mount.
type MountWait struct {
	InitialDelay time.Duration `mapstructure:"initialDelay"`
	MaxDelay     time.Duration `mapstructure:"maxDelay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults fills unset optional fields.
func (p *Processor) ApplyDefaults() {
	if p.Title == "" {
		p.Title = p.ID
	}
	if p.NodePurposeLabelKey == "" {
		p.NodePurposeLabelKey = DefaultNodePurposeLabelKey
	}
	if p.SidecarMode == "" {
		p.SidecarMode = SidecarNative
	}
	if p.JobTTL == 0 {
		p.JobTTL = DefaultJobTTL
	}
	if p.MountWait.InitialDelay == 0 {
		p.MountWait.InitialDelay = 100 * time.Millisecond
	}
	if p.MountWait.MaxDelay == 0 {
		p.MountWait.MaxDelay = 2 * time.Second
	}
	if p.MountWait.Timeout == 0 {
		p.MountWait.Timeout = 120 * time.Second
	}
	for i := range p.Secrets {
		if p.Secrets[i].Access == "" {
			p.Secrets[i].Access = SecretAccessMount
		}
	}
	p.OutputDirectory = strings.TrimRight(p.OutputDirectory, "/")
	p.JupyterBaseURL = strings.TrimRight(p.JupyterBaseURL, "/")
}

// Validate returns one message per problem.
func (p *Processor) Validate() []string {
	var errs []string
	if p.ID == "" {
		errs = append(errs, "id is required")
	}
	if p.DefaultImage == "" {
		errs = append(errs, "defaultImage is required")
	}
	if p.OutputDirectory == "" {
		errs = append(errs, "outputDirectory is required")
	}

	for name, pattern := range map[string]string{
		"allowedImagesRegex":       p.AllowedImagesRegex,
		"allowedNodePurposesRegex": p.AllowedNodePurposesRegex,
	} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Sprintf("%s does not compile: %v", name, err))
		}
	}

	if p.S3 != nil {
		if p.S3.BucketName == "" || p.S3.SecretName == "" {
			errs = append(errs, "s3 needs bucketName and secretName")
		}
	}
	if p.CheckoutGitRepo != nil {
		if p.CheckoutGitRepo.URL == "" || p.CheckoutGitRepo.SecretName == "" {
			errs = append(errs, "checkoutGitRepo needs url and secretName")
		}
	}
	for _, s := range p.Secrets {
		if s.Name == "" {
			errs = append(errs, "secret without name")
		}
		if s.Access != SecretAccessMount && s.Access != SecretAccessEnv {
			errs = append(errs, fmt.Sprintf("secret %s has unknown access %q", s.Name, s.Access))
		}
	}
	for _, pvc := range p.ExtraPVCs {
		if pvc.ClaimName == "" || pvc.MountPath == "" {
			errs = append(errs, "extraPvcs entries need claimName and mountPath")
		}
	}
	if p.SidecarMode != SidecarNative && p.SidecarMode != SidecarLegacy {
		errs = append(errs, fmt.Sprintf("unknown sidecarMode %q", p.SidecarMode))
	}

	if p.JobTTL < 0 || p.JobTTL > MaxJobTTL {
		errs = append(errs, fmt.Sprintf("jobTtl must be between 0 and %s", MaxJobTTL))
	}

	w := p.MountWait
	if w.InitialDelay <= 0 || w.MaxDelay <= 0 || w.Timeout <= 0 {
		errs = append(errs, "mountWait durations must be positive")
	} else if w.InitialDelay > w.MaxDelay {
		errs = append(errs, "mountWait.initialDelay must not exceed maxDelay")
	}
	return errs
}

// KernelFor returns the default kernel for an image, matched by prefix.
func (p *Processor) KernelFor(image string) string {
	best := ""
	kernel := ""
	for _, k := range p.DefaultKernels {
		if strings.HasPrefix(image, k.ImagePrefix) && len(k.ImagePrefix) > len(best) {
			best = k.ImagePrefix
			kernel = k.Kernel
		}
	}
	return kernel
}
