package schemas

import (
	"github.com/quatton/qpaper/pkg/qconfig"
	"github.com/quatton/qpaper/pkg/qspec"
)

// Process describes a configured notebook process.
type Process struct {
	ID          string   `json:"id" doc:"Process ID"`
	Title       string   `json:"title,omitempty" doc:"Process title"`
	Description string   `json:"description,omitempty" doc:"Process description"`
	Inputs      []string `json:"inputs" doc:"Recognized input names"`
	Image       string   `json:"image" doc:"Default notebook image"`
}

func NewProcess(p *qconfig.Processor) Process {
	return Process{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Inputs:      qspec.KnownInputs(),
		Image:       p.DefaultImage,
	}
}
