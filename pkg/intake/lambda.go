package intake

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
)

// LambdaHandler adapts the service to an API Gateway proxy integration.
// It never returns a Go error: every failure becomes a JSON response.
func LambdaHandler(service *Service) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if requestID := event.RequestContext.RequestID; requestID != "" {
			ctx = observability.WithRequestID(ctx, requestID)
		}

		req, err := decodeEvent(event)
		if err != nil {
			malformed := &Error{Kind: KindMalformedRequest, Op: "decode", Err: err}
			service.reject(ctx, malformed)
			return proxyResponse(nil, malformed), nil
		}

		out, err := service.Subscribe(ctx, req)
		return proxyResponse(out, err), nil
	}
}

func decodeEvent(event events.APIGatewayProxyRequest) (*Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 body: %w", err)
		}
		body = decoded
	}

	return DecodeRequest(body)
}

func proxyResponse(out *Outcome, err error) events.APIGatewayProxyResponse {
	status, body := NewResponse(out, err)
	// Response has only string and bool fields; Marshal cannot fail
	data, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}
