// Package notifykit is the notification subsystem of the Wisebite consumer
// and merchant apps: a REST history fetcher, a supervised websocket channel
// for server pushes, an in-memory store that merges both feeds, a persisted
// token store, and a bridge to the platform notification surface.
//
// Typical use:
//
//	cfg, err := notifykit.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := notifykit.New(cfg, notifykit.WithPlatformPresenter(platform))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.StartFromStore(ctx); err != nil {
//		// prompt for login, then client.Start(ctx, tok)
//	}
//
//	sub := client.Subscribe(ctx)
//	for snap := range sub.Receive() {
//		render(snap.Notifications, snap.Counts)
//	}
//
// The realtime channel reconnects with capped exponential backoff; after the
// retry budget is spent the client degrades to periodic REST polling until
// the next Start.
package notifykit
