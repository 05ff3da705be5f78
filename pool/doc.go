// Package pool manages the lifecycle of an HTTP engine's connections.
//
// A Manager supplies the transport's dialer, so it sees every connection
// the transport opens. It caps the total number of connections, applies the
// per-route limits to the transport, and uses httptrace to learn when a
// connection is carrying a request and when it goes idle. A single evictor
// goroutine closes connections idle longer than the configured timeout, and
// a server's Keep-Alive timeout (or a configured default) bounds how long an
// idle connection stays reusable.
//
//	m, err := pool.New(pool.Config{MaxTotal: 50, IdleTimeout: 30 * time.Second})
//	if err != nil {
//	    return err
//	}
//	t := cleanhttp.DefaultPooledTransport()
//	m.Configure(t)
//	client := &http.Client{Transport: m.Instrument(t)}
//	m.Start()
//	defer m.Close()
package pool
