/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is followed by the station id, e.g. "airwave.ingest.alpha".
const SubjectPrefix = "airwave.ingest."

// Subject returns the ingest subject for a station.
func Subject(station string) string {
	return SubjectPrefix + station
}

// decode parses a message, taking the station from the subject when the body omits it.
func decode(subject string, data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	if msg.Station == "" {
		msg.Station = strings.TrimPrefix(subject, SubjectPrefix)
		if msg.Station == subject {
			msg.Station = ""
		}
	}
	return msg, nil
}

// Listen consumes content-ready messages for every station until ctx ends. Messages are
// handled one at a time so a station's items keep their publish order.
func (i *Ingestor) Listen(ctx context.Context, nc *nats.Conn) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(SubjectPrefix+"*", ch)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			i.logger.Debug().Err(err).Msg("unsubscribe failed")
		}
	}()
	i.logger.Info().Str("subject", sub.Subject).Msg("listening for content")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-ch:
			i.consume(ctx, m)
		}
	}
}

func (i *Ingestor) consume(ctx context.Context, m *nats.Msg) {
	msg, err := decode(m.Subject, m.Data)
	if err != nil {
		i.logger.Warn().Err(err).Str("subject", m.Subject).Msg("malformed content message")
		return
	}

	hctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	r, err := i.Handle(hctx, msg)
	if err != nil {
		i.logger.Error().Err(err).Str("station_id", msg.Station).Str("title", msg.Title).Msg("content not queued")
	}
	if m.Reply != "" {
		reply := map[string]any{"ok": err == nil}
		if err != nil {
			reply["error"] = err.Error()
		} else {
			reply["range_id"] = r.ID
		}
		data, _ := json.Marshal(reply)
		if rerr := m.Respond(data); rerr != nil {
			i.logger.Debug().Err(rerr).Msg("reply failed")
		}
	}
}
