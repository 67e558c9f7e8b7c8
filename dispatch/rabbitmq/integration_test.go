package rabbitmq

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pure-golang/bikerental/dispatch"
)

type RabbitMQSuite struct {
	suite.Suite
	container testcontainers.Container
	uri       string
}

func TestRabbitMQSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQSuite))
}

func (s *RabbitMQSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	s.Require().NoError(err, "failed to start container")
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "5672")
	s.Require().NoError(err)

	s.uri = fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func (s *RabbitMQSuite) TearDownSuite() {
	if s.container != nil {
		if err := s.container.Terminate(context.Background()); err != nil {
			s.T().Logf("failed to terminate container: %v", err)
		}
	}
}

func (s *RabbitMQSuite) TestDispatchAndConsume() {
	queueName := uuid.NewString()

	dialer := NewDialer(s.uri, nil)
	s.Require().NoError(dialer.Connect())
	s.T().Cleanup(func() { s.NoError(dialer.Close()) })
	s.Require().NoError(dialer.DeclareQueue(queueName))

	received := make(chan dispatch.Job, 1)
	sub := NewSubscriber(dialer, queueName, 1)
	go sub.Listen(func(_ context.Context, job dispatch.Job) error {
		received <- job
		return nil
	})
	s.T().Cleanup(func() { s.NoError(sub.Close()) })

	d := NewDispatcher(NewPublisher(dialer, PublisherConfig{RoutingKey: queueName}))
	s.Require().NoError(d.Dispatch(context.Background(), testJob()))

	select {
	case job := <-received:
		s.Equal(testJob(), job)
	case <-time.After(10 * time.Second):
		s.Fail("job was not consumed")
	}
}
