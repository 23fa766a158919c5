// Package hubcontext embeds the hub-aware context retrieval pipeline in a Go program.
//
// The client runs the same cache, embed, search and rank stages as the
// hubcontext server against a Valkey, Redis or PostgreSQL backend. The caller
// supplies the embedding provider.
//
//	client, err := hubcontext.New(ctx,
//	    hubcontext.WithValkey("localhost:6379", ""),
//	    hubcontext.WithEmbedder(myEmbedder),
//	    hubcontext.WithVectorDimensions(1536),
//	)
//	if err != nil { ... }
//	defer client.Close()
//
//	res, err := client.Retrieve(ctx, hubcontext.Query{
//	    Text:    "campaign budget planning",
//	    HubArea: "marketing",
//	})
//	for _, item := range res.Items {
//	    fmt.Println(item.RelevanceScore, item.CitationContext)
//	}
package hubcontext
