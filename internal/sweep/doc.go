// Package sweep varies one video generation parameter across a fixed range
// and saves one video per value.
//
// A sweep holds prompt, seed and every other model input constant and changes
// exactly one field:
//
//	kind   varied field         values  held constant
//	shift  sample_shift         1..9    sample_guide_scale=7
//	guide  sample_guide_scale   0..10   sample_shift=5
//
// # Usage
//
//	s, err := sweep.New(sweep.Config{
//	    Kind:   sweep.KindGuide,
//	    Prompt: "A smiling woman walking in London at night",
//	    Seed:   42,
//	    Model:  "wavespeedai/wan-2.1-t2v-720p",
//	}, sweep.Options{
//	    Generator: apiClient,
//	    Fetcher:   httpClient,
//	    Store:     store,
//	    Logger:    logger,
//	})
//	outcomes := s.Run(ctx)
//
// # Worker Pool
//
// Workers receive values from a channel and run each task as a linear
// pipeline: build input, generate, resolve the output URL, download, save.
// A failing step ends only that task. Run returns after every task has
// finished, with one Outcome per value.
//
// # Output Layout
//
//	guide_comparison/guide0.mp4 ... guide_comparison/guide10.mp4
//	shift_comparison/shift1.mp4 ... shift_comparison/shift9.mp4
package sweep
