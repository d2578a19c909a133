package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/service"
)

// MockTextGenerator is a mock type for the TextGenerator type
type MockTextGenerator struct {
	mock.Mock
}

// InitializeStory provides a mock function with given fields: ctx, req
func (_m *MockTextGenerator) InitializeStory(ctx context.Context, req domain.StoryInitRequest) (domain.StoryInit, error) {
	ret := _m.Called(ctx, req)

	var r0 domain.StoryInit
	if rf, ok := ret.Get(0).(func(context.Context, domain.StoryInitRequest) domain.StoryInit); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(domain.StoryInit)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, domain.StoryInitRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ContinueStory provides a mock function with given fields: ctx, req
func (_m *MockTextGenerator) ContinueStory(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ret := _m.Called(ctx, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, domain.GenerationRequest) string); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, domain.GenerationRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockTextGenerator creates a new instance of MockTextGenerator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockTextGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTextGenerator {
	m := &MockTextGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.TextGenerator = (*MockTextGenerator)(nil)
