package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/liftmap/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a batch key is new", func() {
			seen := d.SeenAndRecord(ctx, dedupe.Key("s1", "b1"))

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a batch key is replayed", func() {
			d.SeenAndRecord(ctx, dedupe.Key("s1", "b1"))
			seen := d.SeenAndRecord(ctx, dedupe.Key("s1", "b1"))

			Convey("Then it is reported as seen", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same batch id arrives for another session", func() {
			d.SeenAndRecord(ctx, dedupe.Key("s1", "b1"))
			seen := d.SeenAndRecord(ctx, dedupe.Key("s2", "b1"))

			Convey("Then it is treated as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When a key is unrecorded", func() {
			d.SeenAndRecord(ctx, dedupe.Key("s1", "b1"))
			d.Unrecord(ctx, dedupe.Key("s1", "b1"))
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, dedupe.Key("s1", "b1")), ShouldBeFalse)
			})
		})

		Convey("When a session is forgotten", func() {
			for i := 0; i < 5; i++ {
				d.SeenAndRecord(ctx, dedupe.Key("s1", fmt.Sprint(i)))
				d.SeenAndRecord(ctx, dedupe.Key("s2", fmt.Sprint(i)))
			}
			d.Forget(ctx, "s1")

			Convey("Then only that session's keys are dropped", func() {
				So(d.Size(), ShouldEqual, 5)
				So(d.SeenAndRecord(ctx, dedupe.Key("s1", "0")), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, dedupe.Key("s2", "0")), ShouldBeTrue)
			})
		})
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"a", "b", "c"} {
			So(d.SeenAndRecord(ctx, dedupe.Key("s", k)), ShouldBeFalse)
		}

		Convey("When another key is recorded", func() {
			d.SeenAndRecord(ctx, dedupe.Key("s", "d"))

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, dedupe.Key("s", "d")), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, dedupe.Key("s", "c")), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, dedupe.Key("s", "a")), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, dedupe.Key("s", fmt.Sprint(i)))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, dedupe.Key("s", "0")), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent writers racing on the same keys", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		const goroutines, keys = 8, 200

		var mu sync.Mutex
		fresh := 0
		var wg sync.WaitGroup
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < keys; k++ {
					if !d.SeenAndRecord(context.Background(), dedupe.Key("s", fmt.Sprint(k))) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every key is recorded exactly once", func() {
			So(fresh, ShouldEqual, keys)
			So(d.Size(), ShouldEqual, keys)
		})
	})
}
