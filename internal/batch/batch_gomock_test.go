package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/mock"
)

func TestCommit_ChunkBoundaries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	writer := mock.NewMockWriter(ctrl)
	gomock.InOrder(
		writer.EXPECT().BatchWrite(gomock.Any(), gomock.Len(3)).Return(nil),
		writer.EXPECT().BatchWrite(gomock.Any(), gomock.Len(2)).Return(nil),
	)

	c := NewCoordinator(writer, logger.Nop(), WithChunkSize(3), WithRetryDelay(time.Millisecond))
	result, err := c.Commit(context.Background(), makeOps(5))
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalChunks)
	assert.Equal(t, 2, result.SucceededChunks)
}

func TestCommit_RetriesFailedChunkOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	writer := mock.NewMockWriter(ctrl)
	gomock.InOrder(
		writer.EXPECT().BatchWrite(gomock.Any(), gomock.Any()).Return(errors.New("transient")),
		writer.EXPECT().BatchWrite(gomock.Any(), gomock.Any()).Return(nil),
	)

	c := NewCoordinator(writer, logger.Nop(), WithChunkSize(10), WithRetryDelay(time.Millisecond))
	result, err := c.Commit(context.Background(), makeOps(4))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalChunks)
	assert.Equal(t, 1, result.SucceededChunks)
	assert.Zero(t, result.FailedChunks)
}
