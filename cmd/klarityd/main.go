// Command klarityd drives the playback engine in internal/controller against
// a fixed list of locations given on the command line, advancing through an
// internal/queue.Queue as each track reaches PlaybackComplete.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gzehua/Klarity/internal/config"
	"github.com/gzehua/Klarity/internal/controller"
	"github.com/gzehua/Klarity/internal/ctlerr"
	"github.com/gzehua/Klarity/internal/mediafactory"
	"github.com/gzehua/Klarity/internal/queue"
)

// historyDepth mirrors the teacher's internal/playlist default undo depth.
const historyDepth = 20

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s FILE [FILE...]\n", os.Args[0])
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	q := queue.New(historyDepth)
	for _, location := range os.Args[1:] {
		q.Add(queue.NewItem(location))
	}

	opts := controller.Options{
		VideoPoolSize:     cfg.Buffers.VideoPoolSize,
		LateDropThreshold: cfg.Sync.VideoLateDropThreshold(),
		EarlyWaitCap:      cfg.Sync.VideoEarlyWaitCap(),
		SpeedMin:          cfg.Speed.Min,
		SpeedMax:          cfg.Speed.Max,
	}
	ctrl := controller.New(mediafactory.New(), opts)
	defer ctrl.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	events := ctrl.Subscribe()
	advance := make(chan bool, 1) // true: continue queue, false: stop run loop

	go func() {
		for {
			select {
			case e, ok := <-events.StateChanged:
				if !ok {
					return
				}
				log.Printf("state: %s/%s", e.Current.Status, e.Current.PlaybackStatus)
			case <-events.PlaybackComplete:
				advance <- true
			case e, ok := <-events.Error:
				if !ok {
					return
				}
				fmt.Fprintln(os.Stderr, ctlerr.Format(e.Op, e.Err))
				advance <- true
			case <-events.Done:
				return
			}
		}
	}()

	item, ok := q.Next()
	for ok {
		if err := ctrl.Execute(controller.ReleaseCommand{}); err != nil {
			fmt.Fprintf(os.Stderr, "release: %v\n", err)
		}

		if err := playItem(ctrl, item, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", item.Location, err)
			item, ok = q.Next()
			continue
		}

		select {
		case <-advance:
		case <-sig:
			ok = false
			continue
		}

		item, ok = q.Next()
	}

	if err := ctrl.Execute(controller.ReleaseCommand{}); err != nil {
		fmt.Fprintf(os.Stderr, "release: %v\n", err)
	}
}

// playItem prepares and plays one queue item and returns the first Prepare
// or Play error; steady-state progress is reported by the subscription
// goroutine in main.
func playItem(ctrl *controller.Controller, item queue.Item, cfg *config.Config) error {
	log.Printf("preparing %s", item.Location)
	err := ctrl.Execute(controller.PrepareCommand{
		Location:        item.Location,
		AudioBufferSize: cfg.Buffers.AudioCapacity,
		VideoBufferSize: cfg.Buffers.VideoCapacity,
	})
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	if err := ctrl.Execute(controller.PlayCommand{}); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	if media := ctrl.State().Media; media.Continuous() {
		log.Printf("playing %s (%s)", item.Location, media.Duration.Round(time.Second))
	}
	return nil
}
