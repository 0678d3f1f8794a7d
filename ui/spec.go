// Package ui defines the rendering protocol between the agent and the
// client. The server may only ask the client to render components from a
// closed, shared enumeration; each component carries its own typed prop
// shape. Anything outside the enumeration degrades to plain text.
package ui

import (
	"encoding/json"
	"fmt"
)

// ComponentID identifies a renderable client component.
type ComponentID string

const (
	// ComponentDetailsView renders a single record as labeled fields.
	ComponentDetailsView ComponentID = "details_view"
	// ComponentListView renders a selectable list of records.
	ComponentListView ComponentID = "list_view"
	// ComponentFormProjection projects a form whose submission becomes
	// the params of a pending tool call.
	ComponentFormProjection ComponentID = "form_projection"
)

// KnownComponent reports whether id belongs to the published enumeration.
func KnownComponent(id ComponentID) bool {
	switch id {
	case ComponentDetailsView, ComponentListView, ComponentFormProjection:
		return true
	}
	return false
}

// Props is the tagged-union payload of a Spec. Each variant declares the
// component it belongs to; a Spec whose componentId disagrees with its
// props variant is invalid.
type Props interface {
	componentID() ComponentID
}

// DetailField is one labeled value in a details view.
type DetailField struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// DetailsProps renders a single record.
type DetailsProps struct {
	Title  string        `json:"title"`
	Fields []DetailField `json:"fields"`
}

func (DetailsProps) componentID() ComponentID { return ComponentDetailsView }

// ListItem is one row in a list view. Data carries the underlying record
// so a select event can reference it.
type ListItem struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ListProps renders a selectable list.
type ListProps struct {
	Title     string     `json:"title"`
	Items     []ListItem `json:"items"`
	EmptyText string     `json:"emptyText,omitempty"`
}

func (ListProps) componentID() ComponentID { return ComponentListView }

// FormField describes one input of a projected form.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // text, number, select, textarea
	Value    any      `json:"value,omitempty"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// FormProps projects a form. Submission feeds SubmitTool with the field
// values merged over SubmitParams.
type FormProps struct {
	Title        string         `json:"title"`
	Fields       []FormField    `json:"fields"`
	SubmitTool   string         `json:"submitTool"`
	SubmitParams map[string]any `json:"submitParams,omitempty"`
}

func (FormProps) componentID() ComponentID { return ComponentFormProjection }

// Spec instructs the client to render one component. Target optionally
// names the client region (canvas slot) to render into.
type Spec struct {
	Component ComponentID `json:"componentId"`
	Target    string      `json:"target,omitempty"`
	Props     Props       `json:"props"`
}

// Validate checks that the spec names a known component and that the
// props variant matches it.
func (s *Spec) Validate() error {
	if !KnownComponent(s.Component) {
		return fmt.Errorf("unknown componentId %q", s.Component)
	}
	if s.Props == nil {
		return fmt.Errorf("componentId %q has no props", s.Component)
	}
	if got := s.Props.componentID(); got != s.Component {
		return fmt.Errorf("props for %q attached to componentId %q", got, s.Component)
	}
	return nil
}

// UnmarshalJSON decodes the props variant selected by componentId.
// Unknown componentIds are rejected, never guessed at.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Component ComponentID     `json:"componentId"`
		Target    string          `json:"target"`
		Props     json.RawMessage `json:"props"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Component = raw.Component
	s.Target = raw.Target

	switch raw.Component {
	case ComponentDetailsView:
		var p DetailsProps
		if err := json.Unmarshal(raw.Props, &p); err != nil {
			return fmt.Errorf("invalid details_view props: %w", err)
		}
		s.Props = p
	case ComponentListView:
		var p ListProps
		if err := json.Unmarshal(raw.Props, &p); err != nil {
			return fmt.Errorf("invalid list_view props: %w", err)
		}
		s.Props = p
	case ComponentFormProjection:
		var p FormProps
		if err := json.Unmarshal(raw.Props, &p); err != nil {
			return fmt.Errorf("invalid form_projection props: %w", err)
		}
		s.Props = p
	default:
		return fmt.Errorf("unknown componentId %q", raw.Component)
	}
	return nil
}
