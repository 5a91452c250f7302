package api

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
)

// ErrMissingPort is returned when a required service is not provided.
var ErrMissingPort = errors.New("api: missing required service")

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Answer    driving.AnswerService
	Ingestion driving.IngestionService
	Search    driving.SearchService
	Stats     driving.StatsService
}

// Validate ensures every port is set.
func (p *Ports) Validate() error {
	switch {
	case p.Answer == nil:
		return fmt.Errorf("%w: answer", ErrMissingPort)
	case p.Ingestion == nil:
		return fmt.Errorf("%w: ingestion", ErrMissingPort)
	case p.Search == nil:
		return fmt.Errorf("%w: search", ErrMissingPort)
	case p.Stats == nil:
		return fmt.Errorf("%w: stats", ErrMissingPort)
	}
	return nil
}
