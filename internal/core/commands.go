package core

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/slaclab/pydm-pva-widgets/modules/framebus"
	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
)

// UseMQTTClient makes Run use c instead of dialing the configured broker.
// It is a no-op when MQTT is disabled.
func (s *Service) UseMQTTClient(c mqtt.Client) {
	if s.emitter != nil {
		s.emitter.UseClient(c)
	}
}

func (s *Service) listColorMaps() ([]string, string) {
	return s.widget.ColorMaps(), s.widget.ColorMap()
}

// Status returns the current service status
func (s *Service) Status() map[string]interface{} {
	s.mu.RLock()
	running := s.isRunning
	started := s.started
	s.mu.RUnlock()

	ws := s.widget.Stats()
	ss := s.source.Stats()

	failures := make(map[string]uint64, len(ws.DecodeFailures))
	for k, v := range ws.DecodeFailures {
		failures[k.String()] = v
	}

	events := make(map[string]uint64)
	for k := range s.events {
		if n := s.events[k].Load(); n > 0 {
			events[ntimage.EventKind(k).String()] = n
		}
	}

	var uptime float64
	if running {
		uptime = time.Since(started).Seconds()
	}

	status := map[string]interface{}{
		"instance_id": s.cfg.InstanceID,
		"uptime_s":    uptime,
		"running":     running,
		"source": map[string]interface{}{
			"kind":     ss.Kind,
			"running":  ss.Running,
			"done":     ss.Done,
			"emitted":  ss.Emitted,
			"errors":   ss.Errors,
			"loops":    ss.Loops,
			"rate_hz":  ss.RateHz,
			"fps_real": ss.FPSReal,
		},
		"widget": map[string]interface{}{
			"state":                ws.State.String(),
			"color_map":            ws.ColorMap,
			"max_redraw_rate":      ws.MaxRedrawRate,
			"viewport":             map[string]int{"width": ws.Viewport.Width, "height": ws.Viewport.Height},
			"frames_received":      ws.FramesReceived,
			"frames_dropped":       ws.FramesDropped,
			"malformed_dropped":    ws.MalformedDropped,
			"decodes_launched":     ws.DecodesLaunched,
			"decodes_succeeded":    ws.DecodesSucceeded,
			"decode_failures":      failures,
			"overruns":             ws.Overruns,
			"stale_completions":    ws.StaleCompletions,
			"degenerate_frames":    ws.DegenerateFrames,
			"displayed_generation": ws.DisplayedGeneration,
			"latest_generation":    ws.LatestGeneration,
			"last_decode_ms":       float64(ws.LastDecodeDuration.Microseconds()) / 1000,
		},
		"events":     events,
		"bitmap_bus": busSummary(s.widget.BusStats()),
	}

	if s.snapshots != nil {
		st := s.snapshots.Stats()
		status["snapshots"] = map[string]interface{}{
			"seen":    st.Seen,
			"written": st.Written,
			"errors":  st.Errors,
			"last":    st.Last,
		}
	}

	if s.emitter != nil {
		es := s.emitter.Stats()
		mq := map[string]interface{}{
			"broker":    s.cfg.MQTT.Broker,
			"connected": es.Connected,
			"published": es.Published,
			"errors":    es.Errors,
			"dropped":   es.Dropped,
		}
		if s.control != nil {
			handled, dropped := s.control.Stats()
			mq["commands_handled"] = handled
			mq["commands_dropped"] = dropped
		}
		status["mqtt"] = mq
	}

	return status
}

func busSummary(bs framebus.BusStats) map[string]interface{} {
	subs := make(map[string]interface{}, len(bs.Subscribers))
	for id, st := range bs.Subscribers {
		subs[id] = map[string]interface{}{
			"sent":      st.Sent,
			"dropped":   st.Dropped,
			"drop_rate": framebus.CalculateSubscriberDropRate(bs, id),
			"health":    framebus.Health(bs, id).String(),
		}
	}
	return map[string]interface{}{
		"published":   bs.TotalPublished,
		"drop_rate":   framebus.CalculateDropRate(bs),
		"subscribers": subs,
	}
}
