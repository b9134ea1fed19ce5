// Package controller is the typed FTX-1 API: each operation encodes a CAT
// command, runs it as a transaction and decodes the reply.
package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/hardware"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/transaction"
)

// ConfirmMode selects how a set command is confirmed.
type ConfirmMode string

const (
	// ConfirmReadback queries the value after setting it and compares.
	ConfirmReadback ConfirmMode = "readback"
	// ConfirmEcho expects the radio to echo the set frame.
	ConfirmEcho ConfirmMode = "echo"
	// ConfirmNone only checks that the radio did not refuse the set.
	ConfirmNone ConfirmMode = "none"
)

// Options configures a Controller.
type Options struct {
	Timeout    time.Duration // per attempt
	MaxRetries int           // extra attempts after a timeout
	Confirm    ConfirmMode
	// Echo is set when the link echoes every frame back, so replies
	// identical to the query just sent are skipped.
	Echo bool

	Codec        *cat.Codec
	OnTransition func(transaction.Transition)
}

// DefaultOptions returns readback confirmation, 500ms timeout and two
// retries.
func DefaultOptions() Options {
	return Options{
		Timeout:    transaction.DefaultTimeout,
		MaxRetries: transaction.DefaultMaxRetries,
		Confirm:    ConfirmReadback,
	}
}

func (o *Options) validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", o.Timeout)
	}
	if o.Timeout == 0 {
		o.Timeout = transaction.DefaultTimeout
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", o.MaxRetries)
	}
	switch o.Confirm {
	case "":
		o.Confirm = ConfirmReadback
	case ConfirmReadback, ConfirmEcho, ConfirmNone:
	default:
		return fmt.Errorf("unknown confirm mode %q", o.Confirm)
	}
	if o.Codec == nil {
		o.Codec = cat.DefaultCodec
	}
	return nil
}

// Controller owns one radio connection. It is safe for concurrent use;
// operations run one at a time.
type Controller struct {
	codec *cat.Codec
	tx    *transaction.Manager
	opts  Options

	// held for a whole operation, so multi-query reads are not interleaved
	mutex sync.Mutex
}

// New takes ownership of port.
func New(port hardware.Port, opts Options) (*Controller, error) {
	if port == nil {
		return nil, fmt.Errorf("port is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tx := transaction.NewManager(port, transaction.Options{
		Terminator:   cat.Terminator,
		Timeout:      opts.Timeout,
		MaxRetries:   opts.MaxRetries,
		OnTransition: opts.OnTransition,
	})

	return &Controller{codec: opts.Codec, tx: tx, opts: opts}, nil
}

// Open opens the port described by cfg and builds a Controller on it.
// The emulator is returned for sim:// devices.
func Open(cfg hardware.RadioConfig, opts Options) (*Controller, *hardware.SimulatedRadio, error) {
	port, sim, err := hardware.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := New(port, opts)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	logging.Info("controller", "Radio connected", map[string]interface{}{
		"device":  cfg.Device,
		"timeout": opts.Timeout.String(),
		"confirm": string(c.opts.Confirm),
	})
	return c, sim, nil
}

// Options returns the validated options.
func (c *Controller) Options() Options {
	return c.opts
}

// Close releases the port. An operation in progress fails with
// cat.ErrClosed.
func (c *Controller) Close() error {
	return c.tx.Close()
}

// query runs a query and decodes its reply. Caller holds c.mutex.
func (c *Controller) query(verb string, params ...cat.Value) (*cat.ParsedResponse, error) {
	frame, err := c.codec.Encode(cat.NewQuery(verb, params...))
	if err != nil {
		return nil, err
	}

	reply, err := c.tx.Execute(transaction.Request{Frame: frame, DiscardEcho: c.opts.Echo})
	if err != nil {
		return nil, err
	}
	return c.codec.Decode(verb, cat.VariantReply, reply.Frame)
}

// followUp is the query sent after a set command. The FTX-1 answers a
// set only when it refuses it, with "?;", and answers in order, so the
// first frame after the set is either that refusal or the reply to the
// follow-up query.
type followUp struct {
	verb   string
	params []cat.Value
	// compare checks the reply against the set under readback confirm
	compare bool
}

// readback follows a set with a query of the same verb and compares.
func readback(verb string, params ...cat.Value) followUp {
	return followUp{verb: verb, params: params, compare: true}
}

// settle follows a set with a query only to surface a refusal.
func settle(verb string, params ...cat.Value) followUp {
	return followUp{verb: verb, params: params}
}

// set sends a set command and confirms it according to the confirm mode.
// Every mode surfaces a refusal of the set as cat.ErrRejected for its own
// verb. Caller holds c.mutex.
func (c *Controller) set(verb string, params []cat.Value, follow followUp) error {
	frame, err := c.codec.Encode(cat.NewSet(verb, params...))
	if err != nil {
		return err
	}
	want, err := c.codec.Decode(verb, cat.VariantSet, frame)
	if err != nil {
		return err
	}

	// verbs without parameters are not echoed
	if c.opts.Confirm == ConfirmEcho && len(params) > 0 {
		reply, err := c.tx.Execute(transaction.Request{Frame: frame, DiscardEcho: c.opts.Echo})
		if err != nil {
			return err
		}
		got, err := c.codec.Decode(verb, cat.VariantSet, reply.Frame)
		if err != nil {
			return err
		}
		return confirm(want, got)
	}

	if err := c.write(frame); err != nil {
		return err
	}
	got, err := c.settleSet(verb, follow)
	if err != nil || got == nil {
		return err
	}
	return confirm(want, got)
}

// settleSet runs the follow-up query of a set without flushing input, so a
// late "?;" is still read. It returns the decoded reply only when it is to
// be compared.
func (c *Controller) settleSet(verb string, follow followUp) (*cat.ParsedResponse, error) {
	frame, err := c.codec.Encode(cat.NewQuery(follow.verb, follow.params...))
	if err != nil {
		return nil, err
	}

	reply, err := c.tx.Execute(transaction.Request{Frame: frame, DiscardEcho: c.opts.Echo, KeepInput: true})
	if err != nil {
		return nil, err
	}

	if cat.IsRejection(reply.Frame) {
		// the query's own reply is still on its way
		if _, err := c.tx.Execute(transaction.Request{
			Frame:       frame,
			DiscardEcho: c.opts.Echo,
			KeepInput:   true,
			ReadOnly:    true,
		}); err != nil {
			logging.Debugf("controller", "no reply to %s after refused %s: %v", follow.verb, verb, err)
		}
		logging.Warn("controller", "set refused", map[string]interface{}{"verb": verb})
		return nil, &cat.Error{Kind: cat.ErrRejected, Verb: verb, Detail: "set refused by radio"}
	}

	if !follow.compare || c.opts.Confirm != ConfirmReadback {
		return nil, nil
	}
	return c.codec.Decode(follow.verb, cat.VariantReply, reply.Frame)
}

// write sends a frame that has no reply. On an echoing link the echo is
// consumed so it cannot be taken for the next reply.
func (c *Controller) write(frame []byte) error {
	if !c.opts.Echo {
		_, err := c.tx.Execute(transaction.Request{Frame: frame, NoReply: true})
		return err
	}

	reply, err := c.tx.Execute(transaction.Request{Frame: frame})
	if err != nil {
		return err
	}
	if string(reply.Frame) != string(frame) {
		return &cat.Error{
			Kind:   cat.ErrVerbMismatch,
			Verb:   string(frame[:2]),
			Detail: fmt.Sprintf("expected echo %q, got %q", frame, reply.Frame),
		}
	}
	return nil
}

// confirm checks that every field of the set command came back unchanged.
func confirm(want, got *cat.ParsedResponse) error {
	for name, w := range want.Fields {
		g, ok := got.Fields[name]
		if !ok || g != w {
			logging.Warn("controller", "set not confirmed", map[string]interface{}{
				"verb": want.Verb, "field": name, "want": w.String(), "got": g.String(),
			})
			return &cat.Error{
				Kind:   cat.ErrSetNotConfirmed,
				Verb:   want.Verb,
				Field:  name,
				Detail: fmt.Sprintf("requested %s, radio reports %s", w, g),
			}
		}
	}
	return nil
}
