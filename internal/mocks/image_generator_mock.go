package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/safa0/google-rangerz/internal/service"
)

// MockImageGenerator is a mock type for the ImageGenerator type
type MockImageGenerator struct {
	mock.Mock
}

// GenerateImage provides a mock function with given fields: ctx, description
func (_m *MockImageGenerator) GenerateImage(ctx context.Context, description string) (string, error) {
	ret := _m.Called(ctx, description)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string) string); ok {
		r0 = rf(ctx, description)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, description)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockImageGenerator creates a new instance of MockImageGenerator.
func NewMockImageGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockImageGenerator {
	m := &MockImageGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.ImageGenerator = (*MockImageGenerator)(nil)

// MockChoiceSelector is a mock type for the ChoiceSelector type
type MockChoiceSelector struct {
	mock.Mock
}

// Select provides a mock function with given fields: ctx, options
func (_m *MockChoiceSelector) Select(ctx context.Context, options []string) (string, error) {
	ret := _m.Called(ctx, options)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, []string) string); ok {
		r0 = rf(ctx, options)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	return r0, ret.Error(1)
}

// NewMockChoiceSelector creates a new instance of MockChoiceSelector.
func NewMockChoiceSelector(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChoiceSelector {
	m := &MockChoiceSelector{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.ChoiceSelector = (*MockChoiceSelector)(nil)
