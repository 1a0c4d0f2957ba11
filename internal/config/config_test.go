package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/liftmap/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.MaxBatchSize, convey.ShouldEqual, 5_000)
			convey.So(cfg.DBPath, convey.ShouldEqual, "liftmap.db")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then it should carry the elevator registry", func() {
			convey.So(cfg.Elevators, convey.ShouldHaveLength, 3)
			convey.So(cfg.Elevators[0].Code, convey.ShouldEqual, "ELV-001")
			convey.So(cfg.Elevators[2].Status, convey.ShouldEqual, "maintenance")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given an otherwise valid config", t, func() {
		cfg := config.New()

		convey.Convey("An empty addr is rejected", func() {
			cfg.Addr = " "
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An empty db path is rejected", func() {
			cfg.DBPath = ""
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An unknown timezone is rejected", func() {
			cfg.Timezone = "Mars/Olympus_Mons"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("Duplicate elevator ids are rejected", func() {
			cfg.Elevators = append(cfg.Elevators, cfg.Elevators[0])
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("UTC resolves to a location", func() {
			cfg.Timezone = "UTC"
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc.String(), convey.ShouldEqual, "UTC")
		})
	})
}
