// Package config defines configuration structures for the paramsweep CLI.
//
// Configuration is layered, later sources winning:
//   - Built-in defaults ([Default])
//   - YAML configuration file ([LoadFromFile])
//   - Environment variables (SWEEP_ prefix, [Config.LoadFromEnv])
//   - Command-line flags
//
// The API credential is only read from the REPLICATE_API_TOKEN environment
// variable, which may also come from a .env file.
//
// # File Format
//
//	type: guide
//	prompt: A smiling woman walking in London at night
//	seed: 42
//	model: wavespeedai/wan-2.1-t2v-720p
//	workers: 5
//	output: ./videos          # or bucket: s3://my-bucket
//	task_timeout: 30m
//	download:
//	  timeout: 5m
//	  retries: 2
//	base_params:
//	  num_frames: 81
//	  aspect_ratio: "16:9"
package config
