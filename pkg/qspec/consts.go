package qspec

// Container layout shared by every notebook job.
const (
	MainContainerName    = "notebook"
	SidecarContainerName = "s3mounter"
	GitInitContainerName = "git-sync"

	HomeDir          = "/home/jovyan"
	S3MountPath      = HomeDir + "/s3"
	GitCheckoutDir   = HomeDir + "/git"
	GitCheckoutName  = "algorithm"
	ResultDataPath   = HomeDir + "/result-data"
	SecretMountRoot  = "/secret"
	HandshakeDir     = "/var/run/qpaper/handshake"
	MountReadyMarker = HandshakeDir + "/s3-ready"

	NotebookUID          int64 = 1000
	NotebookGID          int64 = 100
	JobRunnerGroupID     int64 = 20200
	MountTimeoutExitCode       = 75
)

// Images used by the attachment containers.
const (
	GitSyncImage = "k8s.gcr.io/git-sync:v3.1.6"
	S3FSImage    = "totycro/s3fs:0.7.0-1.90"
)

// Volume names.
const (
	HomeVolumeName      = "home"
	S3VolumeName        = "s3-user-bucket"
	HandshakeVolumeName = "mount-handshake"
	GitVolumeName       = "git-sync-mount"
)

// Environment variables visible to the notebook.
const (
	EnvJobName            = "JOB_NAME"
	EnvJupyterImage       = "JUPYTER_IMAGE"
	EnvPapermillParams    = "PAPERMILL_PARAMETERS"
	EnvProgressAnnotation = "PROGRESS_ANNOTATION"
	EnvMountMarker        = "QPAPER_MOUNT_MARKER"
)

// Labels and annotations written on the workload.
const (
	LabelPrefix        = "qpaper.dev/"
	LabelManaged       = LabelPrefix + "managed"
	LabelProcessID     = LabelPrefix + "process-id"
	LabelRuntime       = "runtime"
	LabelJobName       = "job-name"
	RuntimeFargate     = "fargate"
	AnnotationProcess  = LabelPrefix + "process-id"
	AnnotationID       = LabelPrefix + "identifier"
	AnnotationCreated  = LabelPrefix + "job-start-datetime"
	AnnotationRequest  = LabelPrefix + "request-uid"
	AnnotationParams   = LabelPrefix + "parameters"
	AnnotationResult   = LabelPrefix + "result-notebook"
	AnnotationLink     = LabelPrefix + "result-link"
	AnnotationProgress = LabelPrefix + "progress"

	// MaxAnnotationParams bounds the parameters annotation.
	MaxAnnotationParams = 8000
)
