// Package mocks holds testify mocks for the port interfaces.
package mocks

import (
	"context"

	"github.com/bnema/orator/internal/port"
	"github.com/stretchr/testify/mock"
)

type TextGeneratorMock struct {
	mock.Mock
}

func NewTextGeneratorMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *TextGeneratorMock {
	m := &TextGeneratorMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TextGeneratorMock) Generate(ctx context.Context, model, prompt string) (string, error) {
	args := m.Called(ctx, model, prompt)
	return args.String(0), args.Error(1)
}

func (m *TextGeneratorMock) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *TextGeneratorMock) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *TextGeneratorMock) PullModel(ctx context.Context, model string) error {
	return m.Called(ctx, model).Error(0)
}

func (m *TextGeneratorMock) Endpoint() string {
	return m.Called().String(0)
}

type TranscriberMock struct {
	mock.Mock
}

func NewTranscriberMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *TranscriberMock {
	m := &TranscriberMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TranscriberMock) Transcribe(ctx context.Context, audioPath string) (string, error) {
	args := m.Called(ctx, audioPath)
	return args.String(0), args.Error(1)
}

type DurationProberMock struct {
	mock.Mock
}

func NewDurationProberMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *DurationProberMock {
	m := &DurationProberMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *DurationProberMock) Duration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

var (
	_ port.TextGenerator  = (*TextGeneratorMock)(nil)
	_ port.Transcriber    = (*TranscriberMock)(nil)
	_ port.DurationProber = (*DurationProberMock)(nil)
)
