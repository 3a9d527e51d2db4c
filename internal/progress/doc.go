// Package progress provides progress reporting for parameter sweeps.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalTasks: 11,
//	    Workers:    5,
//	    Label:      "sample_guide_scale 0..10",
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.TaskStarted()
//	reporter.TaskCompleted(videoSize)
//
// # Output Format
//
//	[paramsweep] Sweeping: sample_guide_scale 0..10 | Tasks: 11 | Workers: 5
//	[paramsweep] Tasks: 3 completed | 1 failed | 0 skipped | 5 in-progress | 2 pending | 12.40 MB saved | 2m 10s elapsed
package progress
