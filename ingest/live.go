// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/metrics"
)

// MessageReader yields one DevTools protocol message per call.
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// deadlineSetter is implemented by readers whose blocking reads can be
// interrupted, such as *websocket.Conn.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

var _ MessageReader = (*websocket.Conn)(nil)

const (
	methodDataCollected   = "Tracing.dataCollected"
	methodTracingComplete = "Tracing.tracingComplete"
)

// ErrFeedIncomplete is returned when a live feed ends before
// Tracing.tracingComplete arrives.
var ErrFeedIncomplete = errors.New("live feed ended before Tracing.tracingComplete")

type protocolMessage struct {
	Method string `json:"method"`
	Params struct {
		Value []json.RawMessage `json:"value"`
	} `json:"params"`
}

// Live consumes Tracing.dataCollected messages from src until
// Tracing.tracingComplete. Other protocol messages are ignored.
//
// Cancelling ctx interrupts a blocked read when src supports read deadlines.
// In lenient mode a feed that breaks off early yields the events received so
// far; otherwise ErrFeedIncomplete is returned.
func Live(ctx context.Context, src MessageReader, opts Options) (Result, error) {
	if ds, ok := src.(deadlineSetter); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = ds.SetReadDeadline(time.Now())
		})
		defer stop()
	}

	c := newCollector("live feed", opts)
	var messages int64
	defer func() {
		metrics.Add(metrics.IDLiveMessages, metrics.MetricValue(messages))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		_, data, err := src.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if opts.Lenient {
				log.Warnf("Live feed broke off after %d messages: %v", messages, err)
				return c.finish(), nil
			}
			return Result{}, fmt.Errorf("%w: %w", ErrFeedIncomplete, err)
		}
		messages++

		var msg protocolMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			return Result{}, fmt.Errorf("failed to decode protocol message %d: %w",
				messages, err)
		}

		switch msg.Method {
		case methodDataCollected:
			if err = c.addAll(msg.Params.Value); err != nil {
				return Result{}, err
			}
		case methodTracingComplete:
			return c.finish(), nil
		default:
			log.Debugf("Ignoring protocol message %q", msg.Method)
		}
	}
}
