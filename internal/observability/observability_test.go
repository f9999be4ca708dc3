package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.keys = append(p.keys, routingKey)
	return p.err
}

func TestPublishEventWithoutPublisherIsNoop(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), RouteGroupCreated, NewEvent("domain", "group_created", nil)))
}

func TestPublishEventForwardsAndReportsErrors(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	defer SetPublisher(nil)

	require.NoError(t, PublishEvent(context.Background(), RouteConnectionRequest("accept"), NewEvent("domain", "accept", nil)))
	assert.Equal(t, []string{"connection_requests.accept"}, pub.keys)

	pub.err = errors.New("broker down")
	assert.Error(t, PublishEvent(context.Background(), RouteMessageCreated, NewEvent("domain", "message", nil)))
}

func TestHeadersFromContextCarriesRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	headers := HeadersFromContext(ctx)
	assert.Equal(t, "req-1", headers["x-request-id"])
	_, hasTrace := headers["trace_id"]
	assert.False(t, hasTrace)
}

func TestClientInfoFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/socket", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	req.Header.Set("X-Device-Id", "phone")

	info := ClientInfoFromRequest(req)
	assert.Equal(t, "10.0.0.1", info.IP)
	assert.Equal(t, "phone", info.DeviceID)
	assert.NotEmpty(t, info.RequestID)
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}
