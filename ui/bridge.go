package ui

import "log/slog"

// Bridge is the server-side gate in front of the rendering protocol.
// Emit validates a spec against the published component enumeration and
// fails closed: an invalid spec is dropped (the turn degrades to plain
// text) instead of reaching the client.
type Bridge struct {
	logger *slog.Logger
}

// NewBridge returns a bridge logging dropped specs through logger.
func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{logger: logger}
}

// Emit returns spec if it passes validation, nil otherwise. A nil spec
// passes through as nil so callers can emit unconditionally.
func (b *Bridge) Emit(spec *Spec) *Spec {
	if spec == nil {
		return nil
	}
	if err := spec.Validate(); err != nil {
		b.logger.Warn("dropping invalid ui spec",
			"componentId", string(spec.Component),
			"error", err)
		return nil
	}
	return spec
}
