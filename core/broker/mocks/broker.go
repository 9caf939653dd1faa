package mocks

import (
	"context"

	"catalogue-ingester/core/broker"

	"github.com/stretchr/testify/mock"
)

// Consumer is a mock implementation of broker.Consumer
type Consumer struct {
	mock.Mock
}

func (m *Consumer) Receive(ctx context.Context) (broker.Delivery, error) {
	args := m.Called(ctx)
	if d, ok := args.Get(0).(broker.Delivery); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Consumer) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Publisher is a mock implementation of broker.Publisher
type Publisher struct {
	mock.Mock
}

func (m *Publisher) Publish(ctx context.Context, topic string, body []byte) error {
	args := m.Called(ctx, topic, body)
	return args.Error(0)
}

func (m *Publisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Delivery is a mock implementation of broker.Delivery
type Delivery struct {
	mock.Mock
}

func (m *Delivery) Topic() string {
	args := m.Called()
	return args.String(0)
}

func (m *Delivery) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *Delivery) Body() []byte {
	args := m.Called()
	if b, ok := args.Get(0).([]byte); ok {
		return b
	}
	return nil
}

func (m *Delivery) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Delivery) Nack() error {
	args := m.Called()
	return args.Error(0)
}
