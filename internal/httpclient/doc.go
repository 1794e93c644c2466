// Package httpclient provides the HTTP plumbing used to talk to the checkout API.
//
// It covers:
//   - A client tuned for many concurrent connections to one host
//   - Request builders that validate headers once and replay a JSON body
//   - Context-driven header injection (trace propagation)
//   - Bounded response body reads
//
// # Request Building
//
// Build the checkout request once and reuse it for every iteration:
//
//	builder, err := httpclient.NewJSONRequestBuilder(http.MethodPost, baseURL+"/checkout", payload)
//	if err != nil {
//		return err
//	}
//	builder.WithHeaderInjector(tracing.InjectHTTPHeaders)
//	req, err := builder.Build(ctx)
//
// # HTTP Client
//
// [NewClient] returns a client with the given overall timeout:
//
//	client := httpclient.NewClient(10 * time.Second)
//	resp, err := client.Do(req)
//	body, err := httpclient.ReadBody(resp)
package httpclient
