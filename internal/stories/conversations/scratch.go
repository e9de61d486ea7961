package conversations

import (
	"fmt"

	"github.com/go-faster/jx"
)

// Scratch is the step-scoped data of a conversation. Each (context, step) pair has
// exactly one variant.
type Scratch interface {
	kind() string
	encode(e *jx.Encoder)
}

type Empty struct{}

type PurchaseConnections struct {
	Username string
}

type PurchaseDuration struct {
	Username    string
	Connections int
}

type PurchaseConfirm struct {
	Username    string
	Connections int
	Months      int
	Price       float64
}

type RenewalAccount struct {
	Usernames []string
}

type RenewalDuration struct {
	Username    string
	Connections int
}

type RenewalConfirm struct {
	Username    string
	Connections int
	Months      int
	Price       float64
}

func (Empty) kind() string               { return "empty" }
func (PurchaseConnections) kind() string { return "purchase.connections" }
func (PurchaseDuration) kind() string    { return "purchase.duration" }
func (PurchaseConfirm) kind() string     { return "purchase.confirm" }
func (RenewalAccount) kind() string      { return "renewal.account" }
func (RenewalDuration) kind() string     { return "renewal.duration" }
func (RenewalConfirm) kind() string      { return "renewal.confirm" }

func (Empty) encode(*jx.Encoder) {}

func (s PurchaseConnections) encode(e *jx.Encoder) {
	e.Field("username", func(e *jx.Encoder) { e.Str(s.Username) })
}

func (s PurchaseDuration) encode(e *jx.Encoder) {
	e.Field("username", func(e *jx.Encoder) { e.Str(s.Username) })
	e.Field("connections", func(e *jx.Encoder) { e.Int(s.Connections) })
}

func (s PurchaseConfirm) encode(e *jx.Encoder) {
	e.Field("username", func(e *jx.Encoder) { e.Str(s.Username) })
	e.Field("connections", func(e *jx.Encoder) { e.Int(s.Connections) })
	e.Field("months", func(e *jx.Encoder) { e.Int(s.Months) })
	e.Field("price", func(e *jx.Encoder) { e.Float64(s.Price) })
}

func (s RenewalAccount) encode(e *jx.Encoder) {
	e.Field("usernames", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, u := range s.Usernames {
				e.Str(u)
			}
		})
	})
}

func (s RenewalDuration) encode(e *jx.Encoder) {
	e.Field("username", func(e *jx.Encoder) { e.Str(s.Username) })
	e.Field("connections", func(e *jx.Encoder) { e.Int(s.Connections) })
}

func (s RenewalConfirm) encode(e *jx.Encoder) {
	e.Field("username", func(e *jx.Encoder) { e.Str(s.Username) })
	e.Field("connections", func(e *jx.Encoder) { e.Int(s.Connections) })
	e.Field("months", func(e *jx.Encoder) { e.Int(s.Months) })
	e.Field("price", func(e *jx.Encoder) { e.Float64(s.Price) })
}

// ScratchKind returns the variant tag expected at (c, step).
func ScratchKind(c Context, step Step) string {
	switch {
	case c == ContextPurchase && step == StepChooseConnections:
		return PurchaseConnections{}.kind()
	case c == ContextPurchase && step == StepChooseDuration:
		return PurchaseDuration{}.kind()
	case c == ContextPurchase && step == StepConfirm:
		return PurchaseConfirm{}.kind()
	case c == ContextRenewal && step == StepChooseAccount:
		return RenewalAccount{}.kind()
	case c == ContextRenewal && step == StepChooseDuration:
		return RenewalDuration{}.kind()
	case c == ContextRenewal && step == StepConfirm:
		return RenewalConfirm{}.kind()
	default:
		return Empty{}.kind()
	}
}

// EncodeScratch serializes s with its variant tag.
func EncodeScratch(s Scratch) []byte {
	if s == nil {
		s = Empty{}
	}
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(s.kind()) })
		s.encode(e)
	})
	return e.Bytes()
}

type scratchFields struct {
	kind        string
	username    string
	connections int
	months      int
	price       float64
	usernames   []string
}

// DecodeScratch parses data into the variant that belongs to (c, step). A tag that
// does not match the address is an error.
func DecodeScratch(c Context, step Step, data []byte) (Scratch, error) {
	want := ScratchKind(c, step)
	if len(data) == 0 {
		if want != (Empty{}).kind() {
			return nil, fmt.Errorf("missing scratch data for %s/%s", c, step)
		}
		return Empty{}, nil
	}

	var f scratchFields
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "kind":
			f.kind, err = d.Str()
		case "username":
			f.username, err = d.Str()
		case "connections":
			f.connections, err = d.Int()
		case "months":
			f.months, err = d.Int()
		case "price":
			f.price, err = d.Float64()
		case "usernames":
			err = d.Arr(func(d *jx.Decoder) error {
				u, err := d.Str()
				if err != nil {
					return err
				}
				f.usernames = append(f.usernames, u)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode scratch: %w", err)
	}
	if f.kind != want {
		return nil, fmt.Errorf("scratch kind %q does not match %s/%s (want %q)", f.kind, c, step, want)
	}

	switch want {
	case PurchaseConnections{}.kind():
		return PurchaseConnections{Username: f.username}, nil
	case PurchaseDuration{}.kind():
		return PurchaseDuration{Username: f.username, Connections: f.connections}, nil
	case PurchaseConfirm{}.kind():
		return PurchaseConfirm{Username: f.username, Connections: f.connections, Months: f.months, Price: f.price}, nil
	case RenewalAccount{}.kind():
		return RenewalAccount{Usernames: f.usernames}, nil
	case RenewalDuration{}.kind():
		return RenewalDuration{Username: f.username, Connections: f.connections}, nil
	case RenewalConfirm{}.kind():
		return RenewalConfirm{Username: f.username, Connections: f.connections, Months: f.months, Price: f.price}, nil
	default:
		return Empty{}, nil
	}
}
