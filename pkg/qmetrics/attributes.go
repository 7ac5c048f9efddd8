package qmetrics

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/quatton/qpaper/pkg/qerr"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrProcess   = "process_id"
	attrOperation = "operation"
	attrOutcome   = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func routeAttr(route string) attribute.KeyValue {
	return attribute.String(attrRoute, route)
}

// statusAttr groups codes as 2xx, 4xx and so on.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func processAttr(processID string) attribute.KeyValue {
	if processID == "" {
		processID = "unknown"
	}
	return attribute.String(attrProcess, processID)
}

func operationAttr(op string) attribute.KeyValue {
	return attribute.String(attrOperation, op)
}

// outcomeAttr is "ok" or the error kind.
func outcomeAttr(err error) attribute.KeyValue {
	if err == nil {
		return attribute.String(attrOutcome, "ok")
	}
	return attribute.String(attrOutcome, string(qerr.KindOf(err)))
}
