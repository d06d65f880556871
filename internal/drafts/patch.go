package drafts

import (
	"seedbank/internal/models"
)

// Patch carries the fields a form edit changes. Nil fields are left alone.
type Patch struct {
	Name        *string                  `json:"name,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Attributes  map[string]*string       `json:"attributes,omitempty"`
	Tags        *[]string                `json:"tags,omitempty"`
	Quantity    *float64                 `json:"quantity,omitempty"`
	ClearQty    bool                     `json:"clear_quantity,omitempty"`
	Links       map[models.Kind][]string `json:"links,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Attributes == nil && p.Tags == nil &&
		p.Quantity == nil && !p.ClearQty && p.Links == nil
}

// Apply returns r with the patch applied. A nil attribute value removes the
// attribute; a links entry replaces the IDs for that kind, and an empty list
// removes it.
func (p Patch) Apply(r models.Record) models.Record {
	out := r.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	for key, value := range p.Attributes {
		if value == nil {
			delete(out.Attributes, key)
			continue
		}
		if out.Attributes == nil {
			out.Attributes = make(map[string]string)
		}
		out.Attributes[key] = *value
	}
	if p.Tags != nil {
		out.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.ClearQty {
		out.Quantity = nil
	}
	if p.Quantity != nil {
		quantity := *p.Quantity
		out.Quantity = &quantity
	}
	for kind, ids := range p.Links {
		if len(ids) == 0 {
			delete(out.Links, kind)
			continue
		}
		if out.Links == nil {
			out.Links = make(map[models.Kind][]string)
		}
		out.Links[kind] = append([]string{}, ids...)
	}
	return out
}
