package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultActor is used when no explicit operator is supplied.
const DefaultActor = "admin"

// NormaliseActor lowercases and defaults empty actors to the administrator account.
func NormaliseActor(actor string) string {
	trimmed := strings.TrimSpace(actor)
	if trimmed == "" {
		return DefaultActor
	}
	return strings.ToLower(trimmed)
}

// Kind represents the category of a record.
type Kind string

const (
	KindAccession    Kind = "accessions"
	KindBatch        Kind = "batches"
	KindPlantingSite Kind = "planting_sites"
	KindObservation  Kind = "observations"
)

// AllKinds lists the supported record kinds in a stable order.
var AllKinds = []Kind{KindAccession, KindBatch, KindPlantingSite, KindObservation}

// Valid reports whether k is one of AllKinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind maps a path segment onto a Kind.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", ErrKindUnsupported
	}
	return kind, nil
}

// Point is a WGS84 coordinate.
type Point struct {
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if err := recordValidate.Struct(p); err != nil {
		return translateValidation(err)
	}
	return nil
}

// Boundary is a planting site outline. The ring is implicitly closed.
type Boundary struct {
	Points []Point `json:"points" validate:"min=3,dive"`
}

// Clone returns a deep copy of the boundary.
func (b *Boundary) Clone() *Boundary {
	if b == nil {
		return nil
	}
	return &Boundary{Points: append([]Point(nil), b.Points...)}
}

// Validate requires at least three distinct vertices with valid coordinates.
func (b *Boundary) Validate() error {
	if b == nil {
		return nil
	}
	if err := recordValidate.Struct(b); err != nil {
		return translateValidation(err)
	}
	distinct := make(map[Point]struct{}, len(b.Points))
	for _, p := range b.Points {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return fmt.Errorf("%w: boundary needs 3 distinct vertices", ErrInvalidRecord)
	}
	return nil
}

// Area returns the planar shoelace area of the ring in square degrees.
func (b *Boundary) Area() float64 {
	if b == nil || len(b.Points) < 3 {
		return 0
	}
	var sum float64
	for i, p := range b.Points {
		next := b.Points[(i+1)%len(b.Points)]
		sum += p.Lng*next.Lat - next.Lng*p.Lat
	}
	return math.Abs(sum) / 2
}

// Record describes a single item: an accession, a nursery batch, a planting
// site or an observation.
type Record struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind" validate:"required,oneof=accessions batches planting_sites observations"`
	Name        string            `json:"name" validate:"required,max=200"`
	Description string            `json:"description,omitempty" validate:"max=4000"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Quantity    *float64          `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	Boundary    *Boundary         `json:"boundary,omitempty"`
	Links       map[Kind][]string `json:"links,omitempty"`
	Order       int               `json:"order"`
	UpdatedBy   string            `json:"updated_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := r
	if r.Attributes != nil {
		clone.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			clone.Attributes[k] = v
		}
	}
	if r.Tags != nil {
		clone.Tags = append([]string{}, r.Tags...)
	}
	if r.Quantity != nil {
		quantity := *r.Quantity
		clone.Quantity = &quantity
	}
	clone.Boundary = r.Boundary.Clone()
	if r.Links != nil {
		clone.Links = make(map[Kind][]string, len(r.Links))
		for k, ids := range r.Links {
			clone.Links[k] = append([]string{}, ids...)
		}
	}
	return clone
}

// Validate checks field constraints. Only planting sites carry a boundary.
func (r Record) Validate() error {
	if err := recordValidate.Struct(r); err != nil {
		return translateValidation(err)
	}
	if r.Boundary != nil {
		if r.Kind != KindPlantingSite {
			return fmt.Errorf("%w: boundary only applies to %s", ErrInvalidRecord, KindPlantingSite)
		}
		if err := r.Boundary.Validate(); err != nil {
			return err
		}
	}
	for k := range r.Links {
		if !k.Valid() {
			return fmt.Errorf("%w: link kind %q", ErrInvalidRecord, k)
		}
	}
	return nil
}

// Catalog holds every record grouped by kind.
type Catalog map[Kind][]Record

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	cloned := make(Catalog, len(c))
	for kind, records := range c {
		cloned[kind] = cloneRecords(records)
	}
	return cloned
}

// Count returns the number of records across all kinds.
func (c Catalog) Count() int {
	total := 0
	for _, records := range c {
		total += len(records)
	}
	return total
}

func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	cloned := make([]Record, len(records))
	for i, r := range records {
		cloned[i] = r.Clone()
	}
	return cloned
}

var recordValidate = validator.New(validator.WithRequiredStructEnabled())

func translateValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %s", ErrInvalidRecord, strings.ToLower(fe.Namespace()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
}
