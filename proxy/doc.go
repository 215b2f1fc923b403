// Package proxy provides routing for aws lambda functions that serve http
// requests. A Resolver receives the events of an Application Load Balancer,
// an API Gateway REST api, an API Gateway HTTP api or a Lambda Function URL,
// dispatches them to the route registered for their method and path, and
// converts the handler result into the trigger's response type.
//
// Rules are literal paths with optional <name> placeholders:
//
//	app := proxy.NewAPIGatewayHttpResolver(proxy.WithValidation(true))
//	app.GET("/users/<id>", getUser, proxy.Params(proxy.IntParam("id", "min=1")))
//	lambda.Start(app)
//
// Unknown paths produce a 404, known paths requested with another method a
// 405 and parameters that fail binding a 422. Any other handler error is
// reported as a 500 without its details unless debug is enabled.
package proxy
