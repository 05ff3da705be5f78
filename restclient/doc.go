// Package restclient is a typed REST client that runs every call through a
// pluggable HTTP engine.
//
// A ClientRequest[R] names the target URI, method, headers, query and form
// parameters, body and timeout of one call. The type parameter declares how
// the response body is materialized: NoContent drains and discards it,
// []byte keeps it raw, string decodes it as UTF-8 text, and any other type
// is decoded from JSON.
//
// Authorization headers come from AuthorizationHeaderPlugins held in a
// PluginRegistry. The first plugin, in registration order, with an
// Ant-style pattern matching the request path supplies the header.
//
// Engines live in sibling packages: pooled sends HTTP/1.1 over a bounded
// connection pool, and multiplexed negotiates HTTP/2 over TLS.
//
//	client, err := restclient.New(restclient.Config{Name: "users"}, pooled.Factory,
//	    restclient.WithPlugins(restclient.NewStaticPlugin("Bearer", token, "/api/**")))
//	if err != nil {
//	    return err
//	}
//	defer client.Stop(ctx)
//
//	resp, err := restclient.Get(ctx, client,
//	    restclient.MustRequest[User]("https://users.internal/api/users/42"))
//	if restclient.IsTimeout(err) {
//	    // retry or degrade
//	}
package restclient
