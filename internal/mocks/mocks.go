// Package mocks provides mock implementations of core interfaces for testing.
package mocks

import (
	"context"
	"time"

	"autolecture/internal/polling"
	"autolecture/internal/uidriver"

	"github.com/stretchr/testify/mock"
)

// MockSummaryAPI is a mock implementation of summarize.API
type MockSummaryAPI struct {
	mock.Mock
}

func (m *MockSummaryAPI) Submit(ctx context.Context, sourceKey string) (string, error) {
	args := m.Called(ctx, sourceKey)
	return args.String(0), args.Error(1)
}

func (m *MockSummaryAPI) Fetch(ctx context.Context, jobID string) (polling.Status, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(polling.Status), args.Error(1)
}

// MockGenerator is a mock implementation of textgen.Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockPublisher is a mock implementation of orchestrator.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	args := m.Called(ctx, localPath, key)
	return args.String(0), args.Error(1)
}

// MockDriver is a mock implementation of uidriver.Driver
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) WaitUntilPresent(ctx context.Context, loc uidriver.Locator, timeout time.Duration) error {
	return m.Called(ctx, loc, timeout).Error(0)
}

func (m *MockDriver) WaitUntilClickable(ctx context.Context, loc uidriver.Locator, timeout time.Duration) error {
	return m.Called(ctx, loc, timeout).Error(0)
}

func (m *MockDriver) WaitUntilGone(ctx context.Context, loc uidriver.Locator, timeout time.Duration) error {
	return m.Called(ctx, loc, timeout).Error(0)
}

func (m *MockDriver) Click(ctx context.Context, loc uidriver.Locator) error {
	return m.Called(ctx, loc).Error(0)
}

func (m *MockDriver) TypeOrPaste(ctx context.Context, loc uidriver.Locator, text string) error {
	return m.Called(ctx, loc, text).Error(0)
}

func (m *MockDriver) UploadFile(ctx context.Context, loc uidriver.Locator, path string) error {
	return m.Called(ctx, loc, path).Error(0)
}

func (m *MockDriver) SelectDropdown(ctx context.Context, loc uidriver.Locator, optionText string) error {
	return m.Called(ctx, loc, optionText).Error(0)
}

func (m *MockDriver) DragSlider(ctx context.Context, loc uidriver.Locator, target int) error {
	return m.Called(ctx, loc, target).Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) SetDownloadDir(ctx context.Context, dir string) error {
	return m.Called(ctx, dir).Error(0)
}

func (m *MockDriver) Quit() error {
	return m.Called().Error(0)
}

// PermissiveDriver returns a MockDriver on which every capability succeeds.
// The setup funcs run first, so expectations they register take precedence
// over the catch-all ones.
func PermissiveDriver(setup ...func(d *MockDriver)) *MockDriver {
	d := new(MockDriver)
	for _, fn := range setup {
		fn(d)
	}
	d.On("Navigate", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("WaitUntilPresent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("WaitUntilClickable", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("WaitUntilGone", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("Click", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("TypeOrPaste", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("SelectDropdown", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("DragSlider", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("CurrentURL", mock.Anything).Return("about:blank", nil).Maybe()
	d.On("SetDownloadDir", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("Quit").Return(nil).Maybe()
	return d
}
