// Package videosink presents decoded video frames through GStreamer,
// adapted from the appsink-based capture pipeline in the corpus's RTSP
// stream-capture module (pipeline.go/callbacks.go) but inverted: instead of
// pulling raw buffers out of an appsink, Present pushes them into an
// appsrc-fronted display pipeline.
package videosink

import (
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/gzehua/Klarity/internal/frame"
	"github.com/gzehua/Klarity/internal/media"
)

// Renderer is the video presentation sink: an
// appsrc ! videoconvert ! autovideosink pipeline that Present feeds one
// decoded picture at a time.
type Renderer struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	src      *app.Source
	format   media.VideoFormat
	closed   bool
}

var gstInitOnce sync.Once

// New builds and starts a display pipeline for raw RGB frames matching
// format. format.BufferCapacity must equal width*height*3, matching what
// the framepool blocks handed to Present are sized for.
func New(format media.VideoFormat) (*Renderer, error) {
	gstInitOnce.Do(func() { gst.Init(nil) })

	frameRate := int(format.FrameRate)
	if frameRate <= 0 {
		frameRate = 1
	}
	desc := fmt.Sprintf(
		"appsrc name=src format=time is-live=true block=true caps=video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1 ! videoconvert ! autovideosink sync=true",
		format.Width, format.Height, frameRate,
	)

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("videosink: create pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("src")
	if err != nil {
		pipeline.Destroy()
		return nil, fmt.Errorf("videosink: locate appsrc: %w", err)
	}
	src := app.SrcFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.Destroy()
		return nil, fmt.Errorf("videosink: start pipeline: %w", err)
	}

	return &Renderer{pipeline: pipeline, src: src, format: format}, nil
}

// Present pushes one decoded picture into the pipeline. f's backing data is
// copied into a gst buffer before returning, so the caller is free to
// return f.Data to its pool as soon as Present returns, per the Renderer
// contract.
func (r *Renderer) Present(f frame.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("videosink: renderer closed")
	}
	if f.IsEndOfStream() {
		return nil
	}

	buf := gst.NewBufferWithSize(int64(len(f.Data)))
	if buf == nil {
		return fmt.Errorf("videosink: allocate buffer")
	}
	mapInfo := buf.Map(gst.MapWrite)
	copy(mapInfo.Bytes(), f.Data)
	buf.Unmap()
	buf.SetPresentationTimestamp(gst.ClockTime(f.Timestamp))

	if ret := r.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("videosink: push buffer: %v", ret)
	}
	return nil
}

// Close tears down the pipeline. Idempotent.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.pipeline.SetState(gst.StateNull)
}
