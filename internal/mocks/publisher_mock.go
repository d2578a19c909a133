package mocks

import (
	"context"
	"sync"

	"github.com/safa0/google-rangerz/internal/messaging"
)

// RecordingPublisher сохраняет опубликованные события и задания.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []messaging.StoryEventPayload
	Tasks  []messaging.StoryTaskPayload
	Err    error
}

func (p *RecordingPublisher) PublishEvent(_ context.Context, event messaging.StoryEventPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, event)
	return nil
}

func (p *RecordingPublisher) PublishTask(_ context.Context, task messaging.StoryTaskPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Tasks = append(p.Tasks, task)
	return nil
}

// EventTypes типы событий в порядке публикации.
func (p *RecordingPublisher) EventTypes() []messaging.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]messaging.EventType, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.Type)
	}
	return types
}

var (
	_ messaging.EventPublisher = (*RecordingPublisher)(nil)
	_ messaging.TaskPublisher  = (*RecordingPublisher)(nil)
)
