package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// LambdaFunc is the signature lambda.Start expects for API Gateway proxy events.
type LambdaFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Lambda serves API Gateway proxy events through router.
func Lambda(router http.Handler) LambdaFunc {
	return httpadapter.New(gatewayRequestID(router)).ProxyWithContext
}

// gatewayRequestID reuses the API Gateway request ID so log lines match the
// gateway's access log.
func gatewayRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gw, ok := core.GetAPIGatewayContextFromContext(r.Context()); ok && gw.RequestID != "" && r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", gw.RequestID)
		}
		next.ServeHTTP(w, r)
	})
}
