package qspec

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/quatton/qpaper/pkg/qerr"
	"github.com/quatton/qpaper/pkg/qjob"
)

// Request is the validated view of the inputs of one execution.
type Request struct {
	Notebook       string
	Kernel         string
	OutputFilename string
	Image          string

	// EncodedParameters is the base64 payload handed to papermill with -b.
	EncodedParameters string
	EnvParameters     qjob.Parameters

	CPULimit    *resource.Quantity
	MemLimit    *resource.Quantity
	CPURequests *resource.Quantity
	MemRequests *resource.Quantity

	ResultDataDirectory string
	GitRevision         string
	NodePurpose         string
	RunOnFargate        bool
}

var knownInputs = map[string]bool{
	"notebook":              true,
	"path":                  true,
	"kernel":                true,
	"output_filename":       true,
	"image":                 true,
	"parameters":            true,
	"parameters_json":       true,
	"params":                true,
	"parameters_env":        true,
	"cpu_limit":             true,
	"mem_limit":             true,
	"cpu_requests":          true,
	"mem_requests":          true,
	"result_data_directory": true,
	"git_revision":          true,
	"node_purpose":          true,
	"run_on_fargate":        true,
}

// KnownInputs lists the accepted input names, sorted.
func KnownInputs() []string {
	names := make([]string, 0, len(knownInputs))
	for name := range knownInputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseRequest validates raw inputs. Structured notebook parameters are
// serialized to base64 JSON here, so the builder only deals with strings.
func ParseRequest(params qjob.Parameters) (*Request, error) {
	for _, name := range params.Names() {
		if !knownInputs[name] {
			return nil, qerr.Validation("unknown input %q", name)
		}
	}

	req := &Request{}
	var err error
	str := func(name string) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = params.String(name)
		return strings.TrimSpace(s)
	}

	req.Notebook = str("notebook")
	path := str("path")
	req.Kernel = str("kernel")
	req.OutputFilename = str("output_filename")
	req.Image = str("image")
	req.ResultDataDirectory = str("result_data_directory")
	req.GitRevision = str("git_revision")
	req.NodePurpose = str("node_purpose")
	legacy := str("parameters")
	if err != nil {
		return nil, err
	}
	switch {
	case req.Notebook != "" && path != "":
		return nil, qerr.Validation("notebook and path are mutually exclusive")
	case path != "":
		req.Notebook = path
	case req.Notebook == "":
		return nil, qerr.Validation("input notebook is required")
	}

	if req.RunOnFargate, err = params.Bool("run_on_fargate"); err != nil {
		return nil, err
	}

	if err := req.parseNotebookParameters(params, legacy); err != nil {
		return nil, err
	}

	if req.EnvParameters, err = params.Object("parameters_env"); err != nil {
		return nil, err
	}
	for _, p := range req.EnvParameters {
		if !isEnvName(p.Name) {
			return nil, qerr.Validation("parameters_env key %q is not a valid environment variable name", p.Name)
		}
	}

	quantities := []struct {
		name string
		dst  **resource.Quantity
	}{
		{"cpu_limit", &req.CPULimit},
		{"mem_limit", &req.MemLimit},
		{"cpu_requests", &req.CPURequests},
		{"mem_requests", &req.MemRequests},
	}
	for _, q := range quantities {
		s, err := params.String(q.name)
		if err != nil {
			return nil, err
		}
		if s == "" {
			continue
		}
		parsed, err := resource.ParseQuantity(s)
		if err != nil {
			return nil, qerr.Validation("input %s: %v", q.name, err)
		}
		*q.dst = &parsed
	}

	return req, nil
}

func (r *Request) parseNotebookParameters(params qjob.Parameters, legacy string) error {
	var structured qjob.Parameters
	found := ""
	for _, name := range []string{"parameters_json", "params"} {
		if !params.Has(name) {
			continue
		}
		if found != "" {
			return qerr.Validation("parameters_json and params are mutually exclusive")
		}
		obj, err := params.Object(name)
		if err != nil {
			return err
		}
		structured, found = obj, name
	}

	switch {
	case found != "" && legacy != "":
		return qerr.Validation("parameters cannot be combined with %s", found)
	case found != "":
		encoded, err := json.Marshal(structured)
		if err != nil {
			return qerr.Validation("input %s: %v", found, err)
		}
		r.EncodedParameters = base64.StdEncoding.EncodeToString(encoded)
	case legacy != "":
		if _, err := base64.StdEncoding.DecodeString(legacy); err != nil {
			return qerr.Validation("input parameters must be base64 encoded")
		}
		r.EncodedParameters = legacy
	}
	return nil
}

func isEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
