// Package mocks holds testify mocks for the port interfaces.
package mocks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

type FetcherMock struct {
	mock.Mock
}

func NewFetcherMock(t *testing.T) *FetcherMock {
	m := &FetcherMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *FetcherMock) Probe(ctx context.Context, sourceURL string) (time.Duration, error) {
	args := m.Called(ctx, sourceURL)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *FetcherMock) Fetch(ctx context.Context, sourceURL string, quality int, dir string) (string, error) {
	args := m.Called(ctx, sourceURL, quality, dir)
	return args.String(0), args.Error(1)
}

type TranscoderMock struct {
	mock.Mock
}

func NewTranscoderMock(t *testing.T) *TranscoderMock {
	m := &TranscoderMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TranscoderMock) Transcode(ctx context.Context, mediaPath string, format domain.AudioFormat, dir string) (string, error) {
	args := m.Called(ctx, mediaPath, format, dir)
	return args.String(0), args.Error(1)
}

type RecognizerMock struct {
	mock.Mock
}

func NewRecognizerMock(t *testing.T) *RecognizerMock {
	m := &RecognizerMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *RecognizerMock) Transcribe(ctx context.Context, audioPath string) (string, error) {
	args := m.Called(ctx, audioPath)
	return args.String(0), args.Error(1)
}

type SummarizerMock struct {
	mock.Mock
}

func NewSummarizerMock(t *testing.T) *SummarizerMock {
	m := &SummarizerMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *SummarizerMock) Summarize(ctx context.Context, transcript string) (string, error) {
	args := m.Called(ctx, transcript)
	return args.String(0), args.Error(1)
}

type ResultHookMock struct {
	mock.Mock
}

func NewResultHookMock(t *testing.T) *ResultHookMock {
	m := &ResultHookMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ResultHookMock) Name() string {
	return "mock"
}

func (m *ResultHookMock) Deliver(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

var (
	_ port.Fetcher    = (*FetcherMock)(nil)
	_ port.Transcoder = (*TranscoderMock)(nil)
	_ port.Recognizer = (*RecognizerMock)(nil)
	_ port.Summarizer = (*SummarizerMock)(nil)
	_ port.ResultHook = (*ResultHookMock)(nil)
)
