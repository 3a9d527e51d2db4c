// Package http provides the HTTP client used to fetch generated videos.
//
// This package handles:
//   - Connection pooling shared by all sweep workers
//   - Plain GET requests with no auth headers
//   - Optional retry with exponential backoff (disabled by default)
//   - Mapping non-2xx statuses to typed errors
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	body, err := client.Get(ctx, videoURL)
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
package http
