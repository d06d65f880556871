package drafts

import (
	"seedbank/internal/models"
)

// SetBoundary replaces the whole outline of a planting site.
func (s *Session) SetBoundary(b models.Boundary) (models.Record, error) {
	return s.editBoundary(func(points []models.Point) ([]models.Point, error) {
		for _, p := range b.Points {
			if err := p.Validate(); err != nil {
				return nil, err
			}
		}
		return append([]models.Point(nil), b.Points...), nil
	})
}

// AddVertex inserts p before index. An index equal to the vertex count or
// negative appends.
func (s *Session) AddVertex(index int, p models.Point) (models.Record, error) {
	if err := p.Validate(); err != nil {
		return models.Record{}, err
	}
	return s.editBoundary(func(points []models.Point) ([]models.Point, error) {
		if index < 0 || index == len(points) {
			return append(points, p), nil
		}
		if index > len(points) {
			return nil, ErrVertexOutOfRange
		}
		points = append(points[:index], append([]models.Point{p}, points[index:]...)...)
		return points, nil
	})
}

// MoveVertex replaces the vertex at index.
func (s *Session) MoveVertex(index int, p models.Point) (models.Record, error) {
	if err := p.Validate(); err != nil {
		return models.Record{}, err
	}
	return s.editBoundary(func(points []models.Point) ([]models.Point, error) {
		if index < 0 || index >= len(points) {
			return nil, ErrVertexOutOfRange
		}
		points[index] = p
		return points, nil
	})
}

// RemoveVertex deletes the vertex at index.
func (s *Session) RemoveVertex(index int) (models.Record, error) {
	return s.editBoundary(func(points []models.Point) ([]models.Point, error) {
		if index < 0 || index >= len(points) {
			return nil, ErrVertexOutOfRange
		}
		return append(points[:index], points[index+1:]...), nil
	})
}

// editBoundary hands fn a private copy of the current vertices. An outline
// left without vertices clears the boundary.
func (s *Session) editBoundary(fn func([]models.Point) ([]models.Point, error)) (models.Record, error) {
	if s.Kind != models.KindPlantingSite {
		return models.Record{}, ErrNotBoundaryRecord
	}
	return s.edit(func(current models.Record) (models.Record, error) {
		var points []models.Point
		if current.Boundary != nil {
			points = append(points, current.Boundary.Points...)
		}
		next, err := fn(points)
		if err != nil {
			return models.Record{}, err
		}
		if len(next) == 0 {
			current.Boundary = nil
		} else {
			current.Boundary = &models.Boundary{Points: next}
		}
		return current, nil
	})
}
