package recording

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRecorderClient struct {
	mock.Mock
}

func (m *MockRecorderClient) StartRecording(ctx context.Context, roomId, sessionId string) error {
	args := m.Called(ctx, roomId, sessionId)
	return args.Error(0)
}

func (m *MockRecorderClient) StopRecording(ctx context.Context, sessionId string) error {
	args := m.Called(ctx, sessionId)
	return args.Error(0)
}
