// Package mocks contains a mock of the contentstore package interfaces
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/weixuan0110/ctfbot/contentstore"
)

// Store holds a mock to implement a mock of contentstore.Store
type Store struct {
	mock.Mock
}

// EnsureFolder mocks an implementation of EnsureFolder
func (ms *Store) EnsureFolder(ctx context.Context, path string) (err error) {
	args := ms.Called(ctx, path)

	return args.Error(0)
}

// GetFile mocks an implementation of GetFile
func (ms *Store) GetFile(ctx context.Context, path string) (f contentstore.File, err error) {
	args := ms.Called(ctx, path)

	return args.Get(0).(contentstore.File), args.Error(1)
}

// PutFile mocks an implementation of PutFile
func (ms *Store) PutFile(ctx context.Context, path string, content string, revision string) (err error) {
	args := ms.Called(ctx, path, content, revision)

	return args.Error(0)
}
