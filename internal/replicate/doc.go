// Package replicate runs models through the Replicate predictions API on top
// of github.com/replicate/replicate-go.
//
// Only what a parameter sweep needs is exposed: create a prediction for a
// model, wait for it to finish, and hand back its output.
//
// # Usage
//
//	client, err := replicate.New(replicate.Config{Token: token})
//	out, err := client.Generate(ctx, "wavespeedai/wan-2.1-t2v-720p", map[string]any{
//	    "prompt": "A smiling woman walking in London at night",
//	    "seed":   42,
//	})
//	videoURL, err := out.URL()
//
// # Errors
//
// HTTP failures are returned as the SDK's [*APIError]; use [IsUnauthorized],
// [IsNotFound] and [IsRateLimited] to classify them. Predictions that end
// failed or canceled are returned as [*PredictionError].
package replicate
