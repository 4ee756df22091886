package main

import (
	"log/slog"

	"github.com/inaetics/node-wiring-go/interfaces"
)

// logListener logs every endpoint appearing in or leaving the registry.
type logListener struct {
	log *slog.Logger
}

func (l *logListener) WiringEndpointAdded(ep *interfaces.WiringEndpointDescription, filter string) error {
	l.log.Info("Wiring endpoint added", "wireId", ep.WireID(), "url", ep.URL(), "filter", filter)
	return nil
}

func (l *logListener) WiringEndpointRemoved(ep *interfaces.WiringEndpointDescription, filter string) error {
	l.log.Info("Wiring endpoint removed", "wireId", ep.WireID(), "url", ep.URL(), "filter", filter)
	return nil
}
