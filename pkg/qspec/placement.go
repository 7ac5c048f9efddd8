package qspec

import (
	"regexp"

	corev1 "k8s.io/api/core/v1"

	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qerr"
)

// Placement is the scheduling part of the pod spec.
type Placement struct {
	Affinity    *corev1.Affinity
	Tolerations []corev1.Toleration
	Labels      map[string]string
}

// ResolvePlacement applies node purpose overrides, tolerations and the
// fargate opt-in. Overrides must fully match the processor's allow-list.
func ResolvePlacement(p *qconfig.Processor, req *Request) (Placement, error) {
	var out Placement
	for _, t := range p.Tolerations {
		out.Tolerations = append(out.Tolerations, corev1.Toleration{
			Key:      t.Key,
			Operator: corev1.TolerationOperator(t.Operator),
			Value:    t.Value,
			Effect:   corev1.TaintEffect(t.Effect),
		})
	}

	if req.RunOnFargate {
		if !p.AllowFargate {
			return Placement{}, qerr.Validation("run_on_fargate is not allowed for process %s", p.ID)
		}
		if req.NodePurpose != "" {
			return Placement{}, qerr.Validation("node_purpose cannot be combined with run_on_fargate")
		}
		out.Labels = map[string]string{LabelRuntime: RuntimeFargate}
		return out, nil
	}

	purpose := p.DefaultNodePurpose
	if req.NodePurpose != "" {
		ok, err := nodePurposeAllowed(p.AllowedNodePurposesRegex, req.NodePurpose)
		if err != nil {
			return Placement{}, err
		}
		if !ok {
			return Placement{}, qerr.Validation("node purpose %q is not allowed", req.NodePurpose)
		}
		purpose = req.NodePurpose
	}

	if purpose != "" {
		out.Affinity = &corev1.Affinity{
			NodeAffinity: &corev1.NodeAffinity{
				RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
					NodeSelectorTerms: []corev1.NodeSelectorTerm{{
						MatchExpressions: []corev1.NodeSelectorRequirement{{
							Key:      p.NodePurposeLabelKey,
							Operator: corev1.NodeSelectorOpIn,
							Values:   []string{purpose},
						}},
					}},
				},
			},
		}
	}
	return out, nil
}

func nodePurposeAllowed(pattern, purpose string) (bool, error) {
	if pattern == "" {
		return false, nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return false, qerr.Validation("allowed node purposes pattern does not compile: %v", err)
	}
	return re.MatchString(purpose), nil
}
