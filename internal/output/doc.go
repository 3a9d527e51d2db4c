// Package output stores generated videos in cloud or local storage.
//
// Storage is accessed through gocloud.dev/blob, so the same sweep can write
// to a local directory, S3, GCS or an in-memory bucket in tests.
//
// # Storage Layout
//
//	{root}/guide_comparison/guide0.mp4
//	{root}/guide_comparison/guide1.mp4
//	...
//	{root}/shift_comparison/shift9.mp4
//
// Local roots opened with [OpenLocal] hold plain files with no attribute
// sidecars. Saving to an existing key overwrites it.
package output
