package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InMemAttributeSource implements AttributeSource with an in-memory map.
// Intended for tests and single-process deployments; production hosts wire
// their own subject store.
type InMemAttributeSource struct {
	attributes map[uuid.UUID]SubjectAttributes
	mutex      sync.RWMutex
}

// NewInMemAttributeSource creates an empty in-memory attribute source.
func NewInMemAttributeSource() *InMemAttributeSource {
	return &InMemAttributeSource{
		attributes: make(map[uuid.UUID]SubjectAttributes),
	}
}

// SetSubjectAttributes stores or replaces the attributes for a subject.
func (s *InMemAttributeSource) SetSubjectAttributes(subjectID uuid.UUID, attrs SubjectAttributes) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.attributes[subjectID] = attrs
}

// GetSubjectAttributes retrieves the attributes for a subject. An unknown
// subject is an error, which the engine treats as fail-closed.
func (s *InMemAttributeSource) GetSubjectAttributes(ctx context.Context, subjectID uuid.UUID) (SubjectAttributes, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	attrs, exists := s.attributes[subjectID]
	if !exists {
		return SubjectAttributes{}, fmt.Errorf("subject attributes not found: %s", subjectID)
	}
	return attrs, nil
}
