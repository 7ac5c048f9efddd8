package qspec

import (
	"net/url"
	"path"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"

	"github.com/quatton/qpaper/pkg/qerr"
)

// NotebookPath resolves a notebook path against the home directory.
func NotebookPath(notebook string) (string, error) {
	if strings.TrimSpace(notebook) == "" {
		return "", qerr.Validation("notebook path is empty")
	}
	p := notebook
	if !path.IsAbs(p) {
		p = path.Join(HomeDir, p)
	}
	p = path.Clean(p)
	if strings.HasSuffix(notebook, "/") || p == "/" {
		return "", qerr.Validation("notebook path %q is a directory", notebook)
	}
	return p, nil
}

// OutputPath is where papermill writes the executed notebook. Without an
// explicit name the notebook lands in a date partition under a directory
// named after the job.
func OutputPath(outputDir, jobID, notebook, outputFilename string, now time.Time) string {
	if outputFilename != "" {
		return path.Join(outputDir, path.Base(outputFilename))
	}
	return path.Join(outputDir, now.UTC().Format("2006-01-02"), jobID, path.Base(notebook))
}

// ResultLink points the notebook viewer at the output notebook. Paths outside
// the home directory cannot be opened there and get no link.
func ResultLink(baseURL, outputPath string) string {
	if baseURL == "" {
		return ""
	}
	rel := strings.TrimPrefix(outputPath, HomeDir+"/")
	if rel == outputPath {
		return ""
	}
	var escaped []string
	for _, segment := range strings.Split(rel, "/") {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return strings.TrimRight(baseURL, "/") + "/hub/user-redirect/lab/tree/" + strings.Join(escaped, "/")
}

// PapermillCommand is the papermill invocation. Parameters are read from
// the environment so they never pass through shell quoting.
func PapermillCommand(notebook, output, kernel string, withParameters, logOutput bool) string {
	args := []string{
		"papermill",
		shellescape.Quote(notebook),
		shellescape.Quote(output),
		"--cwd", shellescape.Quote(path.Dir(notebook)),
	}
	if kernel != "" {
		args = append(args, "-k", shellescape.Quote(kernel))
	}
	if withParameters {
		args = append(args, "-b", `"$`+EnvPapermillParams+`"`)
	}
	if logOutput {
		args = append(args, "--log-output")
	}
	return strings.Join(args, " ")
}

// NotebookScript chains the preparation commands and papermill.
func NotebookScript(pre []string, output, papermill string) string {
	steps := append([]string{}, pre...)
	steps = append(steps, "mkdir -p "+shellescape.Quote(path.Dir(output)))
	steps = append(steps, papermill)
	return strings.Join(steps, " && ")
}
