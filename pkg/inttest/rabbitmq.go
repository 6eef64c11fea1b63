package inttest

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const amqpPort = "5672"
const natAMQPPort = amqpPort + "/tcp"

// SetupRabbitMQ creates a RabbitMQ container with an AMQP channel ready to declare, publish and
// consume. The management UI is exposed as well so you can debug tests using a debugger and the
// admin panel.
func SetupRabbitMQ(t *testing.T) *AMQP {
	t.Helper()
	require := require.New(t)
	ctx := context.TODO()

	rabbitMQContainer, err := NewRabbitMQ(ctx)
	require.NoError(err, "failed setting up RabbitMQ")
	t.Cleanup(func() {
		require.NoError(rabbitMQContainer.Terminate(ctx), "failed to terminate RabbitMQ")
	})

	URI, err := rabbitMQContainer.AMQPURI(ctx)
	require.NoError(err, "failed to get RabbitMQ AMQP URI")
	conn, err := amqp.Dial(URI)
	require.NoError(err, "failed setting up AMQP connection")
	t.Cleanup(func() {
		require.NoError(conn.Close(), "failed to close AMQP connection")
	})
	channel, err := conn.Channel()
	require.NoError(err, "failed setting up AMQP channel")

	return &AMQP{
		URI:     URI,
		conn:    conn,
		Channel: channel,
	}
}

// AMQP allows making requests to RabbitMQ via the low-level github.com/rabbitmq/amqp091-go
// library.
type AMQP struct {
	URI     string
	conn    *amqp.Connection
	Channel *amqp.Channel
}

// Connection opens another connection, useful for consuming on a different channel than the one
// published on.
func (a *AMQP) Connection(t *testing.T) *amqp.Connection {
	t.Helper()

	conn, err := amqp.Dial(a.URI)
	require.NoError(t, err, "failed to connect to RabbitMQ")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type rabbitmqContainer struct {
	testcontainers.Container
	user string
	pw   string
}

func (rc *rabbitmqContainer) AMQPURI(ctx context.Context) (string, error) {
	host, err := rc.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := rc.MappedPort(ctx, nat.Port(natAMQPPort))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s", rc.user, rc.pw, host, port.Port()), nil
}

// NewRabbitMQ creates a RabbitMQ container. The container will be listening and ready to accept
// connections.
func NewRabbitMQ(ctx context.Context) (*rabbitmqContainer, error) {
	user := "activities"
	pw := "activities"
	req := testcontainers.ContainerRequest{
		Image: "rabbitmq:3.13-management-alpine",
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": user,
			"RABBITMQ_DEFAULT_PASS": pw,
		},
		ExposedPorts: []string{natAMQPPort, "15672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	return &rabbitmqContainer{
		Container: container,
		user:      user,
		pw:        pw,
	}, nil
}
