package cmd

import (
	"fmt"

	"github.com/quatton/qpaper/pkg/qerr"
)

// explain adds guidance to errors from the orchestrator.
func explain(err error) error {
	if err == nil {
		return nil
	}
	switch qerr.KindOf(err) {
	case qerr.KindNotFound:
		return fmt.Errorf("%w (list jobs with 'qpaper jobs list')", err)
	case qerr.KindRejected:
		return fmt.Errorf("%w (check RBAC and quotas in namespace %q)", err, namespace)
	case qerr.KindTransient:
		return fmt.Errorf("%w (the cluster did not answer, try again)", err)
	default:
		return err
	}
}
