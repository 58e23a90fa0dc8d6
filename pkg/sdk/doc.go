// Package vecshop embeds multimodal product similarity search in a Go program.
// Products are ranked by text or image embeddings stored in Valkey, Redis or SQLite.
//
//	client, _ := vecshop.New(ctx,
//	    vecshop.WithValkey("localhost:6379", ""),
//	    vecshop.WithEmbeddingService("http://localhost:8000"),
//	)
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, catalogCSV, vecshop.IngestOptions{ImagesDir: "images"})
//	products, _ := client.Search(ctx, "navy blue shirt", 10)
//	similar, _ := client.SearchImage(ctx, jpegBytes, "image/jpeg", 10)
package vecshop
