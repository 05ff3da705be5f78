// Package component defines the lifecycle contract for long-lived pieces of
// a restkit application, such as REST clients, and a Registry that starts
// them in registration order and stops them in reverse.
//
//	reg := component.NewRegistry(component.WithStopTimeout(5 * time.Second))
//	_ = reg.Register(users)
//	if err := reg.StartAll(ctx); err != nil {
//	    return err
//	}
//	defer reg.StopAll(context.Background())
package component
