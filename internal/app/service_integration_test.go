package service_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	service "github.com/okian/liftmap/internal/app"
	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
	. "github.com/smartystreets/goconvey/convey"
)

// ride produces a deterministic reading stream that differs per seed.
func ride(seed, n int) []trajectory.Reading {
	out := make([]trajectory.Reading, n)
	for i := range out {
		phase := float64(i+seed) / 7
		out[i] = trajectory.Reading{
			X:         math.Sin(phase),
			Y:         math.Cos(phase),
			Z:         8 * math.Sin(phase/3),
			Timestamp: int64(1000 + i*250),
		}
	}
	return out
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with several workers", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		c := &clock{now: time.UnixMilli(1_700_000_000_000)}
		svc := service.New(
			service.WithWorkerCount(4),
			service.WithQueueSize(1000),
			service.WithDedupeSize(10_000),
			service.WithDBPath(filepath.Join(t.TempDir(), "integration.db")),
			service.WithLocation(time.UTC),
			service.WithClock(c.Now),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When many sessions stream batches concurrently", func() {
			const sessions, batches, perBatch = 6, 20, 5

			ids := make([]string, sessions)
			for i := range ids {
				sess, err := svc.StartSession(ctx, strconv.Itoa(i%3+1), "tech-"+strconv.Itoa(i))
				So(err, ShouldBeNil)
				ids[i] = sess.ID
			}

			var wg sync.WaitGroup
			errs := make(chan error, sessions*batches*2)
			for i, id := range ids {
				wg.Add(1)
				go func(seed int, id string) {
					defer wg.Done()
					readings := ride(seed, batches*perBatch)
					for b := range batches {
						batch := model.SampleBatch{
							SessionID: id,
							BatchID:   strconv.Itoa(b),
							Readings:  readings[b*perBatch : (b+1)*perBatch],
						}
						if _, err := svc.Enqueue(ctx, batch); err != nil {
							errs <- err
						}
						// Every batch is retransmitted once.
						if dup, err := svc.Enqueue(ctx, batch); err != nil || !dup {
							errs <- errors.New("retransmission was not recognized")
						}
					}
				}(i, id)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}

			Convey("Then each finished session equals a sequential replay", func() {
				for i, id := range ids {
					report, err := svc.FinishSession(ctx, id)
					So(err, ShouldBeNil)

					want := trajectory.Replay(ride(i, batches*perBatch), trajectory.WithLocation(time.UTC))
					So(report.Summary.TotalPoints, ShouldEqual, batches*perBatch)
					So(report.Path, ShouldResemble, want.Path())
					So(report.Vertical, ShouldResemble, want.VerticalHeatmap())
					So(report.Analysis, ShouldResemble, want.WorkflowAnalysis())
				}

				stats := svc.GetStats()
				So(stats["activeSessions"], ShouldEqual, 0)
				So(stats["processedBatches"], ShouldEqual, int64(sessions*batches))
			})
		})
	})
}
