// Package interaction implements the ticker command protocol on top of a
// request/response byte exchange.
//
// # Client Usage
//
// A session starts with the auth exchange and then issues named commands:
//
//	c := interaction.NewClient(handle, interaction.ClientConfig{Timeout: 5 * time.Second})
//	if err := c.Authenticate(ctx, token); err != nil {
//	    return err
//	}
//	doc, err := c.Send(ctx, "get_time", nil)
//
// Failures are *CommandError values whose Status tells where the exchange
// broke: encoding the request (SEND_ERROR), the transport (RECV_ERROR) or
// decoding the reply (DESERIALIZE_ERROR).
//
// # Server Usage
//
// A Router dispatches decoded requests to registered handlers. Each
// connection gets its own Session so the auth state is per connection:
//
//	r := interaction.NewRouter(interaction.RouterConfig{Token: token})
//	r.Handle("ping", func(ctx context.Context, _ wire.Document) (wire.Document, error) {
//	    return wire.Document{"pong": true}, nil
//	})
//	reply, closeAfter := r.Dispatch(ctx, session, frame)
package interaction
