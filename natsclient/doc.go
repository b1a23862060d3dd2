// Package natsclient manages the NATS connection and JetStream key-value
// buckets used by the KV-backed entity store.
//
// The client tracks its connection status as it moves from Disconnected
// through Connecting to Connected, and wraps failures in the errors package
// classes so callers can tell a bad configuration from a transient outage.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithCredentials(user, password),
//	    natsclient.WithReconnectWait(2*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket:  "topology_editor_entities",
//	    History: 5,
//	})
//	kv := client.NewKVStore(bucket)
//
// KVStore adds compare-and-swap helpers on top of a bucket. UpdateWithRetry
// reloads the current revision and reapplies fn until the write lands or
// the retry budget is spent.
//
// # Testing
//
// NewTestClient starts a NATS container with testcontainers and returns a
// connected client; it is used by the integration-tagged tests.
package natsclient
