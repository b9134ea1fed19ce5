package engine

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/basilfx/go-utilities/taskrunner"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/config"
	"github.com/dougsko/ftxcat/pkg/controller"
	"github.com/dougsko/ftxcat/pkg/hardware"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/protocol"
	"github.com/dougsko/ftxcat/pkg/storage"
	"github.com/dougsko/ftxcat/pkg/transaction"
	"github.com/dougsko/ftxcat/pkg/verbose"
)

// Version is reported by STATUS
const Version = "0.1.0-dev"

// CoreEngine owns the radio controller and serves it over a Unix socket
type CoreEngine struct {
	config     *config.Config
	socketPath string
	listener   net.Listener
	running    bool
	mutex      sync.RWMutex
	startTime  time.Time

	radio *controller.Controller
	sim   *hardware.SimulatedRadio
	store *storage.StateStore // nil when history is not kept

	// Last polled state
	lastState *protocol.Snapshot

	subscribers map[Subscriber]chan protocol.Snapshot
	subMutex    sync.Mutex

	tasks *taskrunner.TaskRunner
}

// NewCoreEngine creates a new core engine. socketPath may be empty to run
// without the socket server, and store may be nil.
func NewCoreEngine(cfg *config.Config, socketPath string, store *storage.StateStore) *CoreEngine {
	return &CoreEngine{
		config:      cfg,
		socketPath:  socketPath,
		store:       store,
		subscribers: make(map[Subscriber]chan protocol.Snapshot),
		tasks:       taskrunner.New(),
	}
}

// Start connects to the radio, then starts the poller and socket server
func (e *CoreEngine) Start() error {
	e.mutex.Lock()
	if e.running {
		e.mutex.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.mutex.Unlock()

	radio, sim, err := controller.Open(hardware.RadioConfig{
		Device:   e.config.Radio.Device,
		BaudRate: e.config.Radio.BaudRate,
		Sim: hardware.SimOptions{
			LocalEcho: e.config.Radio.Echo,
			EchoSets:  e.config.Radio.Confirm == config.ConfirmEcho,
		},
	}, controller.Options{
		Timeout:      e.config.Timeout(),
		MaxRetries:   e.config.Retries(),
		Confirm:      controller.ConfirmMode(e.config.Radio.Confirm),
		Echo:         e.config.Radio.Echo,
		OnTransition: traceTransition,
	})
	if err != nil {
		return fmt.Errorf("failed to open radio: %w", err)
	}

	if e.socketPath != "" {
		// Remove existing socket file
		os.Remove(e.socketPath)

		listener, err := net.Listen("unix", e.socketPath)
		if err != nil {
			radio.Close()
			return fmt.Errorf("failed to create Unix socket: %w", err)
		}
		e.listener = listener

		// Readable/writable by owner and group
		if err := os.Chmod(e.socketPath, 0660); err != nil {
			logging.Warnf("engine", "failed to set socket permissions: %v", err)
		}
		logging.Infof("engine", "Core engine listening on %s", e.socketPath)
	}

	e.mutex.Lock()
	e.radio = radio
	e.sim = sim
	e.running = true
	e.startTime = time.Now()
	e.mutex.Unlock()

	if every := e.config.PollEvery(); every > 0 {
		e.tasks.RunWithCancel("Engine.Poller", e.pollerTask(every))
	}
	if e.listener != nil {
		e.tasks.RunWithCancel("Engine.Acceptor", e.acceptTask)
	}

	return nil
}

// Stop stops the tasks and closes the radio
func (e *CoreEngine) Stop() error {
	e.mutex.Lock()
	if !e.running {
		e.mutex.Unlock()
		return nil
	}
	e.running = false
	e.mutex.Unlock()

	if e.listener != nil {
		e.listener.Close()
	}

	// Closing the radio first unblocks a poll waiting on a reply
	err := e.radio.Close()

	e.tasks.Cancel()
	e.tasks.Wait()

	if e.listener != nil {
		os.Remove(e.socketPath)
	}

	e.subMutex.Lock()
	for id, c := range e.subscribers {
		delete(e.subscribers, id)
		close(c)
	}
	e.subMutex.Unlock()

	logging.Info("engine", "Core engine stopped")
	return err
}

func (e *CoreEngine) isRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

// Simulator returns the emulator behind a sim:// device, nil otherwise
func (e *CoreEngine) Simulator() *hardware.SimulatedRadio {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.sim
}

// Store returns the history store, which may be nil
func (e *CoreEngine) Store() *storage.StateStore {
	return e.store
}

func traceTransition(t transaction.Transition) {
	if verbose.IsEnabled() {
		verbose.Printf("%s %s: %s -> %s", t.ID, t.Verb, t.From, t.To)
	}
}

// acceptTask accepts socket connections until the listener closes
func (e *CoreEngine) acceptTask(ctx context.Context) {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if !e.isRunning() {
				return
			}
			logging.Warnf("engine", "socket accept error: %v", err)
			continue
		}

		go e.handleConnection(conn)
	}
}

// handleConnection handles a single socket connection
func (e *CoreEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := e.handleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

// handleCommand processes a single command
func (e *CoreEngine) handleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status": e.Status(),
		})

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdInfo:
		snap, err := e.ReadState()
		if err != nil {
			return errorResponse(err)
		}
		return protocol.NewSuccessResponse(map[string]interface{}{"state": snap})

	case protocol.CmdFreq:
		return e.handleFrequency(cmd)

	case protocol.CmdPower:
		return e.handlePower(cmd)

	case protocol.CmdMode:
		return e.handleMode(cmd)

	case protocol.CmdPTT:
		return e.handlePTT(cmd)

	case protocol.CmdID:
		id, err := e.GetID()
		if err != nil {
			return errorResponse(err)
		}
		return protocol.NewSuccessResponse(map[string]interface{}{"id": id})

	case protocol.CmdHistory:
		return e.handleHistory(cmd)

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (e *CoreEngine) handleFrequency(cmd *protocol.Command) *protocol.Response {
	side := cat.Side(cmd.Args["side"].(string))
	if hz, ok := cmd.Args["frequency"].(int); ok {
		if err := e.SetFrequency(side, hz); err != nil {
			return errorResponse(err)
		}
	}

	hz, err := e.GetFrequency(side)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"side":      string(side),
		"frequency": hz,
	})
}

func (e *CoreEngine) handlePower(cmd *protocol.Command) *protocol.Response {
	if watts, ok := cmd.Args["watts"].(int); ok {
		unit := cat.PowerUnit(cmd.Args["unit"].(string))
		if err := e.SetPower(watts, unit); err != nil {
			return errorResponse(err)
		}
	}

	unit, watts, err := e.GetPower()
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"unit":  string(unit),
		"watts": watts,
	})
}

func (e *CoreEngine) handleMode(cmd *protocol.Command) *protocol.Response {
	side := cat.Side(cmd.Args["side"].(string))
	if mode, ok := cmd.Args["mode"].(string); ok {
		if err := e.SetMode(side, cat.Mode(mode)); err != nil {
			return errorResponse(err)
		}
	}

	mode, err := e.GetMode(side)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"side": string(side),
		"mode": string(mode),
	})
}

func (e *CoreEngine) handlePTT(cmd *protocol.Command) *protocol.Response {
	if on, ok := cmd.Args["on"].(bool); ok {
		if err := e.SetPTT(on); err != nil {
			return errorResponse(err)
		}
	}

	state, err := e.GetPTT()
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"ptt":      string(state),
		"transmit": state != cat.TXOff,
	})
}

func (e *CoreEngine) handleHistory(cmd *protocol.Command) *protocol.Response {
	limit := 10
	if n, ok := cmd.Args["limit"].(int); ok && n > 0 {
		limit = n
	}

	snapshots, err := e.History(limit)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// Status returns the daemon status
func (e *CoreEngine) Status() protocol.Status {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	status := protocol.Status{
		Radio:     e.config.GetRadioName(),
		Device:    e.config.Radio.Device,
		Connected: e.running,
		Polling:   e.running && e.config.PollEvery() > 0,
		StartTime: e.startTime,
		Version:   Version,
	}
	if e.radio != nil {
		status.Confirm = string(e.radio.Options().Confirm)
	}
	if e.running {
		status.Uptime = time.Since(e.startTime).Round(time.Second).String()
	}
	return status
}

// errorResponse builds an error response carrying the error kind
func errorResponse(err error) *protocol.Response {
	resp := protocol.NewErrorResponse(err.Error())
	if kind := cat.KindOf(err); kind != nil {
		resp.Kind = kind.Error()
	}
	return resp
}
