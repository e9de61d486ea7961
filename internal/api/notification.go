package api

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"iptv-bot/internal/correlator"
)

var errMalformedNotification = errors.New("malformed payment notification")

// decodeNotification reads both gateway body shapes:
// {"action": ..., "data": {"id": ...}} and {"event": ..., "object": {"id": ...}}.
// The id may be a string or a number.
func decodeNotification(raw []byte) (correlator.Notification, error) {
	var n correlator.Notification

	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "action", "event":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			n.Type = v
		case "data", "object":
			id, err := decodeID(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			if id != "" {
				n.PaymentID = id
			}
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return n, errors.Wrap(errMalformedNotification, err.Error())
	}
	if n.Type == "" || n.PaymentID == "" {
		return n, errors.Wrap(errMalformedNotification, "type and payment id are required")
	}
	return n, nil
}

func decodeID(d *jx.Decoder) (string, error) {
	var id string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "id" {
			return d.Skip()
		}
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			id = v
			return err
		case jx.Number:
			v, err := d.Num()
			if err != nil {
				return err
			}
			id = v.String()
			return nil
		default:
			return errors.New("id must be a string or a number")
		}
	})
	return id, err
}

// formatOutcome is the short body returned to the gateway.
func formatOutcome(o correlator.Outcome) string {
	return strconv.Quote(string(o))
}
