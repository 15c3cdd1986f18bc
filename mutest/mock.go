package mutest

import (
	"github.com/stretchr/testify/mock"

	"github.com/yacchi/nodemux/native"
)

// MockHandle is a testify mock of native.Handle.
//
// Example:
//
//	h := new(mutest.MockHandle[string])
//	h.On("Start", "a", native.Options{ChildList: true}).Return(nil).Once()
//	mux := nodemux.New(h.Opener())
//	...
//	h.AssertExpectations(t)
type MockHandle[T comparable] struct {
	mock.Mock
	Deliver native.DeliverFunc[T]
}

var _ native.Handle[string] = (*MockHandle[string])(nil)

// Opener returns an opener that yields m and stores the delivery callback in Deliver.
func (m *MockHandle[T]) Opener() native.Opener[T] {
	return func(deliver native.DeliverFunc[T]) (native.Handle[T], error) {
		m.Deliver = deliver
		return m, nil
	}
}

// Start implements native.Handle.
func (m *MockHandle[T]) Start(target T, opts native.Options) error {
	args := m.Called(target, opts)
	return args.Error(0)
}

// StopAll implements native.Handle.
func (m *MockHandle[T]) StopAll() error {
	args := m.Called()
	return args.Error(0)
}

// Close implements native.Handle.
func (m *MockHandle[T]) Close() error {
	args := m.Called()
	return args.Error(0)
}
