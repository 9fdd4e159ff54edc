// Command lambda serves the memo web client behind API Gateway HTTP APIs.
// Sessions must be kept in DynamoDB so that they survive between execution
// environments.
package main

import (
	"context"
	"log"
	"time"

	"memo-web/internal/config"
	"memo-web/internal/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container
	coldStart = di.NewColdStartTracker()
)

func init() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Session.Store != config.SessionStoreDynamoDB {
		log.Printf("session store %q does not survive between execution environments", cfg.Session.Store)
	}

	// The container lives as long as the execution environment.
	container, _, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiLambda = chiadapter.NewV2(container.Router)
	container.Logger.Info("Lambda initialized", zap.Duration("init_duration", coldStart.SinceStart()))
}

// Handler proxies one API Gateway request to the router.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if coldStart.Invoke() {
		container.Logger.Info("cold start invocation",
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Duration("since_start", coldStart.SinceStart()),
		)
	}
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
