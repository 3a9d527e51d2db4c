//go:build integration

package main

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ligustah/paramsweep/internal/config"
	"github.com/ligustah/paramsweep/internal/output"
	"github.com/ligustah/paramsweep/internal/testutils"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	t.Setenv(config.TokenEnv, "r8_test")
	captureOutput(t)

	video := testutils.GenerateTestData(t, 512*1024)
	server := testutils.StartPredictionServer(t, video)

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "sweep-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	t.Run("shift_sweep", func(t *testing.T) {
		exitCode := run([]string{
			"-type", "shift",
			"-workers", "3",
			"-bucket", minio.BucketURL,
			"-api-url", server.APIURL(),
		})
		if exitCode != ExitSuccess {
			t.Fatalf("sweep failed with exit code %d", exitCode)
		}

		bkt, err := minio.OpenBucket(ctx)
		if err != nil {
			t.Fatalf("open bucket: %v", err)
		}
		defer bkt.Close()

		for v := 1; v <= 9; v++ {
			key := "shift_comparison/shift" + strconv.Itoa(v) + ".mp4"

			attrs, err := bkt.Attributes(ctx, key)
			if err != nil {
				t.Fatalf("attributes %s: %v", key, err)
			}
			if attrs.ContentType != output.ContentType {
				t.Errorf("%s: expected content type %s, got %s", key, output.ContentType, attrs.ContentType)
			}
			if attrs.Metadata["value"] != strconv.Itoa(v) {
				t.Errorf("%s: expected value metadata %d, got %q", key, v, attrs.Metadata["value"])
			}

			r, err := bkt.NewReader(ctx, key, nil)
			if err != nil {
				t.Fatalf("open %s: %v", key, err)
			}
			testutils.CompareReaderToData(t, r, video)
			r.Close()
		}
	})

	t.Run("skip_existing", func(t *testing.T) {
		before := len(server.Inputs())

		exitCode := run([]string{
			"-type", "shift",
			"-skip-existing",
			"-bucket", minio.BucketURL,
			"-api-url", server.APIURL(),
		})
		if exitCode != ExitSuccess {
			t.Fatalf("sweep failed with exit code %d", exitCode)
		}
		if got := len(server.Inputs()) - before; got != 0 {
			t.Errorf("expected no new predictions, got %d", got)
		}
	})
}
