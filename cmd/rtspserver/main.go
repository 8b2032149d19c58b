package main

import (
	"context"
	"math"
	"net"
	"net/http"
	"os"
	"time"

	cli "github.com/jawher/mow.cli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mcm001/v4l2-hevc-meme/internal/metrics"
	"github.com/mcm001/v4l2-hevc-meme/stream"
)

const (
	appName = "rtspserver"
	appDesc = "embedded RTSP/HEVC publisher"
)

func main() {
	app := cli.App(appName, appDesc)

	listenAddr := app.String(cli.StringOpt{
		Name:   "addr",
		Desc:   "RTSP control channel listen address",
		EnvVar: "RTSP_LISTEN_ADDR",
		Value:  ":8554",
	})

	advertiseIP := app.String(cli.StringOpt{
		Name:   "advertise-ip",
		Desc:   "IP advertised to clients in SDP responses",
		EnvVar: "RTSP_ADVERTISE_IP",
		Value:  "127.0.0.1",
	})

	metricsAddr := app.String(cli.StringOpt{
		Name:   "metrics-addr",
		Desc:   "Prometheus scrape endpoint listen address",
		EnvVar: "RTSP_METRICS_ADDR",
		Value:  ":9100",
	})

	demoStream := app.String(cli.StringOpt{
		Name:   "demo-stream",
		Desc:   "if set, publishes a synthetic test pattern under this stream name",
		EnvVar: "RTSP_DEMO_STREAM",
		Value:  "",
	})

	app.Action = func() {
		ctx := context.Background()

		ip := net.ParseIP(*advertiseIP)
		if ip == nil {
			log.WithField("advertise-ip", *advertiseIP).Panic("failed to parse advertise-ip")
		}

		group, ctx := errgroup.WithContext(ctx)

		group.Go(func() error {
			return stream.StartServer(ctx, stream.Config{
				ListenAddr:  *listenAddr,
				AdvertiseIP: ip,
			})
		})

		group.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}

			go func() {
				<-ctx.Done()
				srv.Close()
			}()

			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})

		if *demoStream != "" {
			group.Go(func() error {
				return runDemoProducer(ctx, *demoStream)
			})
		}

		if err := group.Wait(); err != nil {
			log.WithError(err).Panic("stopped")
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Panic("failed to execute application")
	}
}

// runDemoProducer publishes a synthetic solid-shade frame at 30fps (the
// shade steps by one each frame, wrapping at 255),
// standing in for a real in-process frame producer so the publish path
// can be exercised without a camera.
func runDemoProducer(ctx context.Context, name string) error {
	const width, height = 640, 480
	stride := width * 3
	pix := make([]byte, stride*height)

	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	var frame int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			shade := byte(math.Mod(float64(frame), 255))
			for i := range pix {
				pix[i] = shade
			}
			stream.PublishFrame(name, width, height, stride, pix)
			frame++
		}
	}
}
